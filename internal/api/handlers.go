package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/leverage"
	"voice-trading-assistant-go/internal/speech"
	"voice-trading-assistant-go/internal/trader"
)

type textRequest struct {
	Text string `json:"text" validate:"required"`
}

type executeRequest struct {
	Intent       *intent.TradeIntent `json:"intent" validate:"required"`
	Confirmation string              `json:"confirmation"`
}

type ordersQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=open all"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=500"`
}

func formatValidationError(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["request"] = err.Error()
		return out
	}
	for _, e := range verrs {
		out[e.Field()] = "failed on tag '" + e.Tag() + "'"
	}
	return out
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Server) fail(c *gin.Context, status int, msg string, err error) {
	s.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(status, gin.H{"error": msg, "message": err.Error()})
}

// GET /health
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": s.timestamp()})
}

// readAudio returns the "audio" multipart file, or writes a 400 and false.
func (s *Server) readAudio(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioSize+1<<20)
	header, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file provided"})
		return nil, false
	}
	if header.Size > maxAudioSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio file too large", "maxBytes": maxAudioSize})
		return nil, false
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No audio file provided"})
		return nil, false
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read audio file"})
		return nil, false
	}
	return audio, true
}

// POST /api/voice/transcribe
func (s *Server) transcribe(c *gin.Context) {
	audio, ok := s.readAudio(c)
	if !ok {
		return
	}
	transcript, err := s.pipeline.Transcribe(c.Request.Context(), audio)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to transcribe audio", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transcript": transcript, "timestamp": s.timestamp()})
}

// POST /api/voice/process
func (s *Server) process(c *gin.Context) {
	audio, ok := s.readAudio(c)
	if !ok {
		return
	}
	a, err := s.pipeline.ProcessAudio(c.Request.Context(), audio, trader.SourceHTTP)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to process voice command", err)
		return
	}
	c.JSON(http.StatusOK, s.analysisResponse(a))
}

// POST /api/voice/parse
func (s *Server) parse(c *gin.Context) {
	req, ok := s.bindText(c)
	if !ok {
		return
	}
	a := s.pipeline.Analyze(c.Request.Context(), req.Text, trader.SourceHTTP)
	c.JSON(http.StatusOK, s.analysisResponse(a))
}

// POST /api/voice/text-to-speech
func (s *Server) textToSpeech(c *gin.Context) {
	req, ok := s.bindText(c)
	if !ok {
		return
	}
	audio, err := s.voice.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to generate speech", err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) bindText(c *gin.Context) (textRequest, bool) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return req, false
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required", "validation_errors": formatValidationError(err)})
		return req, false
	}
	return req, true
}

func (s *Server) analysisResponse(a trader.Analysis) gin.H {
	return gin.H{
		"success":                    true,
		"transcript":                 a.Transcript,
		"intent":                     a.Intent,
		"validation":                 a.Validation,
		"requiresConfirmation":       a.RequiresConfirmation,
		"requiresStrongConfirmation": a.RequiresStrongConfirmation,
		"timestamp":                  s.timestamp(),
	}
}

// POST /api/orders/execute
func (s *Server) executeOrder(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Intent is required", "validation_errors": formatValidationError(err)})
		return
	}

	order, err := s.pipeline.Execute(c.Request.Context(), *req.Intent, req.Confirmation)
	var verr *trader.ValidationError
	switch {
	case errors.Is(err, trader.ErrConfirmationRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order requires confirmation", "requiresConfirmation": true})
		return
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order validation failed", "validation": verr.Result})
		return
	case err != nil:
		s.fail(c, http.StatusInternalServerError, "Failed to execute order", err)
		return
	}

	in := req.Intent.Normalized()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"order":     order,
		"message":   fmt.Sprintf("Order executed: %s %d %s", in.Side, in.Quantity, in.Symbol),
		"timestamp": s.timestamp(),
	})
}

// GET /api/orders?status=open|all&limit=50
func (s *Server) listOrders(c *gin.Context) {
	var q ordersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}
	if err := s.validate.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"validation_errors": formatValidationError(err)})
		return
	}
	orders, err := s.pipeline.Orders(c.Request.Context(), q.Status, q.Limit)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to fetch orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
}

// DELETE /api/orders/:orderId
func (s *Server) cancelOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	if err := s.pipeline.CancelOrder(c.Request.Context(), orderID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, broker.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.fail(c, status, "Failed to cancel order", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order cancelled successfully", "orderId": orderID})
}

// DELETE /api/orders/symbol/:symbol
func (s *Server) cancelOrdersBySymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	cancelled, err := s.pipeline.CancelOrdersBySymbol(c.Request.Context(), symbol)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to cancel orders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Cancelled all orders for " + symbol,
		"cancelledCount": len(cancelled),
	})
}

// GET /api/positions
func (s *Server) listPositions(c *gin.Context) {
	positions, err := s.pipeline.Positions(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to fetch positions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "positions": positions})
}

// GET /api/positions/leveraged
func (s *Server) leveragedPositions(c *gin.Context) {
	view, err := s.pipeline.LeveragedPositions(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to fetch leveraged positions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"total":          view.Total,
		"leveragedCount": view.LeveragedCount,
		"positions":      view.Positions,
		"grouped":        view.Grouped,
	})
}

// GET /api/positions/leveraged/etfs
func (s *Server) leveragedETFs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "etfs": leverage.Catalog()})
}

// GET /api/positions/account/info
func (s *Server) accountInfo(c *gin.Context) {
	account, err := s.pipeline.Account(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to fetch account info", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "account": account})
}

// GET /api/positions/:symbol
func (s *Server) getPosition(c *gin.Context) {
	symbol := c.Param("symbol")
	position, err := s.pipeline.Position(c.Request.Context(), symbol)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to fetch position", err)
		return
	}
	if position == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Position not found", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "position": position})
}

// GET /api/elevenlabs/signed-url
func (s *Server) signedURL(c *gin.Context) {
	url, err := s.voice.SignedURL(c.Request.Context())
	switch {
	case errors.Is(err, speech.ErrAPIKeyNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Elevenlab API Key not configured"})
	case errors.Is(err, speech.ErrAgentNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Elevenlab Agent ID not configured",
			"message": "Please create an Agent at https://elevenlabs.io/app/conversational-ai and add the Agent ID to .env",
		})
	case err != nil:
		s.fail(c, http.StatusInternalServerError, "Failed to get signed URL", err)
	default:
		c.JSON(http.StatusOK, gin.H{"signed_url": url})
	}
}

// GET /api/elevenlabs/status
func (s *Server) elevenLabsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.voice.Status())
}
