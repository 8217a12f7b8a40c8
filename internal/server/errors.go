package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/papertrade/internal/engine"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf maps an engine error kind to an HTTP status.
func statusOf(kind engine.Kind) int {
	switch kind {
	case engine.KindInvalidInput, engine.KindInvalidShareCount, engine.KindNoSuchHolding:
		return http.StatusBadRequest
	case engine.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case engine.KindUnknownSymbol, engine.KindNoSuchAccount:
		return http.StatusNotFound
	case engine.KindAccountExists:
		return http.StatusConflict
	case engine.KindQuoteUnavailable:
		return http.StatusBadGateway
	case engine.KindStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {code, message}. Backend details stay in the logs.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := engine.KindOf(err)
	status := statusOf(kind)

	resp := errorResponse{Code: kind.String(), Message: err.Error()}
	switch kind {
	case engine.KindStoreFailure:
		resp.Message = "ledger temporarily unavailable, try again"
	case engine.KindUnknown:
		resp.Code = "internal"
		resp.Message = "internal error"
		s.logger.Error("unclassified request error", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Code:    engine.KindInvalidInput.String(),
		Message: msg,
	})
}
