// Package server exposes the trade engine over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /version
//	POST /api/v1/accounts
//	GET  /api/v1/accounts/:user_id            ?revalue=true
//	GET  /api/v1/accounts/:user_id/history    ?limit=N
//	POST /api/v1/accounts/:user_id/buy
//	POST /api/v1/accounts/:user_id/sell
//	GET  /api/v1/accounts/:user_id/stream     (websocket)
//	GET  /api/v1/quotes/:symbol
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/papertrade/internal/engine"
	"github.com/rickgao/papertrade/internal/stream"
)

const apiBasePath = "/api/v1"

// Config holds HTTP layer settings.
type Config struct {
	CORSOrigin string // empty disables CORS headers
}

// Server is the HTTP API. It implements http.Handler.
type Server struct {
	router *gin.Engine
	engine *engine.Engine
	hub    *stream.Hub
	cfg    Config
	logger *slog.Logger
}

// New creates a Server. hub may be nil, in which case the stream route is not
// registered.
func New(eng *engine.Engine, hub *stream.Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	if cfg.CORSOrigin != "" {
		router.Use(cors(cfg.CORSOrigin))
	}

	s := &Server{
		router: router,
		engine: eng,
		hub:    hub,
		cfg:    cfg,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Code: "not_found", Message: "no route for " + c.Request.URL.Path})
	})

	s.router.GET("/health", s.health)
	s.router.GET("/version", s.version)

	api := s.router.Group(apiBasePath)
	{
		api.POST("/accounts", s.openAccount)

		acct := api.Group("/accounts/:user_id")
		{
			acct.GET("", s.portfolio)
			acct.GET("/history", s.history)
			acct.POST("/buy", s.buy)
			acct.POST("/sell", s.sell)
			if s.hub != nil {
				acct.GET("/stream", s.stream)
			}
		}

		api.GET("/quotes/:symbol", s.quote)
	}
}
