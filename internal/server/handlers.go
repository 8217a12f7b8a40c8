package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/engine"
	"github.com/rickgao/papertrade/internal/model"
	"github.com/rickgao/papertrade/internal/version"
)

type openAccountRequest struct {
	UserID string           `json:"user_id"`
	Cash   *decimal.Decimal `json:"cash"` // omitted: configured initial cash
}

type tradeRequest struct {
	Symbol string     `json:"symbol"`
	Shares ShareCount `json:"shares"`
}

type tradeResponse struct {
	Message string `json:"message"`
	engine.TradeResult
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	if err := s.engine.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Components["ledger"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["ledger"] = "connected"
	}

	health.Components["engine"] = s.engine.Stats()
	if s.hub != nil {
		health.Components["stream"] = map[string]any{
			"published": s.hub.Published(),
		}
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

func (s *Server) openAccount(c *gin.Context) {
	var req openAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	acct, err := s.engine.OpenAccount(c.Request.Context(), req.UserID, req.Cash)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (s *Server) portfolio(c *gin.Context) {
	revalue := false
	if v := c.Query("revalue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "revalue must be true or false")
			return
		}
		revalue = b
	}

	p, err := s.engine.Portfolio(c.Request.Context(), c.Param("user_id"), revalue)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) history(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	txs, err := s.engine.History(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (s *Server) buy(c *gin.Context) {
	s.trade(c, model.SideBuy)
}

func (s *Server) sell(c *gin.Context) {
	s.trade(c, model.SideSell)
}

func (s *Server) trade(c *gin.Context, side model.Side) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := s.engine.Trade(c.Request.Context(), side, c.Param("user_id"), req.Symbol, int64(req.Shares))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tradeResponse{Message: res.Message(), TradeResult: res})
}

func (s *Server) quote(c *gin.Context) {
	q, err := s.engine.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) stream(c *gin.Context) {
	userID := c.Param("user_id")
	if _, err := s.engine.Account(c.Request.Context(), userID); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.hub.Serve(c.Request.Context(), c.Writer, c.Request, userID); err != nil {
		s.logger.Debug("trade stream ended", "user_id", userID, "error", err)
	}
}
