package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stepannikulin59/btc-intraday-bot/internal/bot"
	"github.com/stepannikulin59/btc-intraday-bot/internal/logging"
	"github.com/stepannikulin59/btc-intraday-bot/internal/telegram"
)

// Server is the local status/control HTTP server. It exposes the last
// cycle snapshot, the score breakdown, the trading switch, and a
// websocket feed of snapshots.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	engine     *bot.Bot
	sw         *telegram.Switch
	hub        *wsHub
	log        *logging.Logger
}

// Config holds server listen settings.
type Config struct {
	Port int
	Host string
}

func NewServer(cfg Config, engine *bot.Bot, sw *telegram.Switch) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		router: router,
		engine: engine,
		sw:     sw,
		hub:    newWSHub(),
		log:    logging.WithComponent("api"),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) routes() {
	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/analysis", s.handleAnalysis)
		api.POST("/trading/enable", s.handleEnable)
		api.POST("/trading/disable", s.handleDisable)
	}
	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the listener and the websocket hub. It returns once the
// listener stops.
func (s *Server) Start() error {
	go s.hub.run()
	go s.publishLoop()

	s.log.Info("API server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// publishLoop pushes the engine snapshot to websocket clients on a
// fixed cadence.
func (s *Server) publishLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		s.hub.broadcastJSON(s.engine.Snapshot())
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"enabled":      snap.Enabled,
		"symbol":       snap.Symbol,
		"price":        snap.Price,
		"has_position": snap.HasPosition,
		"side":         snap.Side,
		"size":         snap.Size,
		"entry_price":  snap.EntryPrice,
		"last_stop":    snap.LastStop,
		"updated_at":   snap.Time,
	})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"symbol":     snap.Symbol,
		"price":      snap.Price,
		"score":      snap.Score,
		"breakdown":  snap.Breakdown,
		"regime":     snap.Regime,
		"updated_at": snap.Time,
	})
}

func (s *Server) handleEnable(c *gin.Context) {
	s.sw.Enable()
	s.log.Info("Trading enabled via API")
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (s *Server) handleDisable(c *gin.Context) {
	s.sw.Disable()
	s.log.Info("Trading disabled via API")
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}
