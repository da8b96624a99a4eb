// Package api exposes the voice trading pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/config"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/speech"
	"voice-trading-assistant-go/internal/trader"
)

const maxAudioSize = 10 << 20

// Pipeline is the trading engine surface served over HTTP.
type Pipeline interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	ProcessAudio(ctx context.Context, audio []byte, source string) (trader.Analysis, error)
	Analyze(ctx context.Context, text, source string) trader.Analysis
	Execute(ctx context.Context, in intent.TradeIntent, confirmation string) (*broker.Order, error)
	Orders(ctx context.Context, status string, limit int) ([]broker.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelOrdersBySymbol(ctx context.Context, symbol string) ([]broker.Order, error)
	Positions(ctx context.Context) ([]broker.Position, error)
	Position(ctx context.Context, symbol string) (*broker.Position, error)
	Account(ctx context.Context) (*broker.Account, error)
	LeveragedPositions(ctx context.Context) (trader.LeveragedView, error)
}

var _ Pipeline = (*trader.Engine)(nil)

// Voice is the text-to-speech and conversational agent surface.
type Voice interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SignedURL(ctx context.Context) (string, error)
	Status() speech.Status
}

var _ Voice = (*speech.ElevenLabs)(nil)

// Options are the handlers and collaborators mounted by the server.
// Realtime and Metrics are optional.
type Options struct {
	Pipeline Pipeline
	Voice    Voice
	Realtime http.Handler
	Metrics  http.Handler
}

// Server provides the HTTP interface of the assistant.
type Server struct {
	server   *http.Server
	router   *gin.Engine
	pipeline Pipeline
	voice    Voice
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer creates a new Server and registers its routes.
func NewServer(cfg config.Server, opts Options, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = maxAudioSize

	s := &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router:   router,
		pipeline: opts.Pipeline,
		voice:    opts.Voice,
		validate: validator.New(),
		logger:   logger.Named("api-server"),
		now:      time.Now,
	}

	router.Use(gin.Recovery(), s.requestLogger(), cors.New(corsConfig()))
	s.registerRoutes(opts, cfg.StaticDir)
	return s
}

func (s *Server) registerRoutes(opts Options, staticDir string) {
	s.router.GET("/health", s.health)

	voice := s.router.Group("/api/voice")
	{
		voice.POST("/transcribe", s.transcribe)
		voice.POST("/process", s.process)
		voice.POST("/parse", s.parse)
		voice.POST("/text-to-speech", s.textToSpeech)
	}

	orders := s.router.Group("/api/orders")
	{
		orders.POST("/execute", s.executeOrder)
		orders.GET("", s.listOrders)
		orders.DELETE("/:orderId", s.cancelOrder)
		orders.DELETE("/symbol/:symbol", s.cancelOrdersBySymbol)
	}

	positions := s.router.Group("/api/positions")
	{
		positions.GET("", s.listPositions)
		positions.GET("/leveraged", s.leveragedPositions)
		positions.GET("/leveraged/etfs", s.leveragedETFs)
		positions.GET("/account/info", s.accountInfo)
		positions.GET("/:symbol", s.getPosition)
	}

	elevenlabs := s.router.Group("/api/elevenlabs")
	{
		elevenlabs.GET("/signed-url", s.signedURL)
		elevenlabs.GET("/status", s.elevenLabsStatus)
	}

	if opts.Realtime != nil {
		s.router.GET("/ws", gin.WrapH(opts.Realtime))
	}
	if opts.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if staticDir != "" {
		s.router.NoRoute(gin.WrapH(http.FileServer(http.Dir(staticDir))))
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}
}
