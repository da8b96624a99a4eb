// Package session implements the per-connection state machine of the real-time
// voice channel. Every inbound event goes through Session.Handle.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/metrics"
	"voice-trading-assistant-go/internal/trader"
	"voice-trading-assistant-go/internal/validation"
)

// State is the connection state reported in status messages.
type State string

const (
	StateIdle                 State = "idle"
	StateListening            State = "listening"
	StateProcessing           State = "processing"
	StateTranscribing         State = "transcribing"
	StateParsing              State = "parsing"
	StateValidating           State = "validating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateValidationFailed     State = "validation_failed"
	StateExecuting            State = "executing"
	StateExecutionFailed      State = "execution_failed"
	StateError                State = "error"
)

// Inbound event types.
const (
	EventStartRecording = "start_recording"
	EventAudioChunk     = "audio_chunk"
	EventStopRecording  = "stop_recording"
	EventConfirmOrder   = "confirm_order"
	EventCancelOrder    = "cancel_order"
	EventProcessText    = "process_text"
	EventPing           = "ping"
)

// Outbound message types.
const (
	MessageStatus        = "status"
	MessageError         = "error"
	MessageTranscript    = "transcript"
	MessageIntent        = "intent"
	MessageValidation    = "validation"
	MessageOrderExecuted = "order_executed"
	MessagePong          = "pong"
)

const (
	msgIntentRequired   = "Intent is required for order confirmation"
	msgNotRecording     = "Not currently recording"
	msgNoText           = "No text provided"
	msgAwaitingConfirm  = "Order validated. Awaiting confirmation."
	msgValidationFailed = "Order validation failed"
)

// Event is one inbound message.
type Event struct {
	Type   string              `json:"type"`
	Chunk  string              `json:"chunk,omitempty"`
	Text   string              `json:"text,omitempty"`
	Intent *intent.TradeIntent `json:"intent,omitempty"`
}

// Message is one outbound message. Only the fields relevant to Type are set.
type Message struct {
	Type                 string              `json:"type"`
	State                State               `json:"state,omitempty"`
	Message              string              `json:"message,omitempty"`
	Error                string              `json:"error,omitempty"`
	Transcript           string              `json:"transcript,omitempty"`
	Intent               *intent.TradeIntent `json:"intent,omitempty"`
	Validation           *validation.Result  `json:"validation,omitempty"`
	Errors               []string            `json:"errors,omitempty"`
	Order                *broker.Order       `json:"order,omitempty"`
	RequiresConfirmation bool                `json:"requiresConfirmation,omitempty"`
	Timestamp            time.Time           `json:"timestamp"`
}

// Sender delivers outbound messages to the peer.
type Sender interface {
	Send(msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(msg Message) error

func (f SenderFunc) Send(msg Message) error { return f(msg) }

// Pipeline is the part of the trading engine a session drives.
type Pipeline interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
	ParseIntent(ctx context.Context, text string) intent.TradeIntent
	ValidateOrder(ctx context.Context, in intent.TradeIntent) validation.Result
	CreateOrder(ctx context.Context, in intent.TradeIntent, source string) (*broker.Order, error)
	RecordCommand(source, transcript string, in intent.TradeIntent, res validation.Result)
}

var _ Pipeline = (*trader.Engine)(nil)

// Session is the state of one real-time connection. Events are handled one
// at a time; Handle blocks while a previous event is still in flight.
type Session struct {
	ID string

	mu        sync.Mutex
	pipeline  Pipeline
	sender    Sender
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	state     State
	recording bool
	chunks    []string
	pending   *intent.TradeIntent
	closed    bool
}

// New creates a session in the idle state. Call Open to greet the peer.
func New(pipeline Pipeline, sender Sender, logger *zap.Logger, m *metrics.Metrics) *Session {
	id := uuid.NewString()
	return &Session{
		ID:       id,
		pipeline: pipeline,
		sender:   sender,
		logger:   logger.Named("session").With(zap.String("session_id", id)),
		metrics:  m,
		now:      time.Now,
		state:    StateIdle,
	}
}

// Open sends the initial status notification.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.SessionOpened()
	s.status(StateIdle, Message{Message: "Connected. Ready to receive voice commands."})
}

// Close drops buffered audio; later events are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.recording = false
	s.chunks = nil
	s.pending = nil
	s.metrics.SessionClosed()
	s.logger.Info("Session closed")
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recording reports whether audio chunks are being buffered.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// HandleMessage decodes a raw inbound message and handles it. Malformed
// messages are answered with an error message.
func (s *Session) HandleMessage(ctx context.Context, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			s.sendError(fmt.Sprintf("Invalid message: %v", err))
		}
		return
	}
	s.Handle(ctx, ev)
}

// Handle is the single dispatch point of the state machine.
func (s *Session) Handle(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.metrics.RealtimeEvent(ev.Type)

	switch ev.Type {
	case EventStartRecording:
		s.recording = true
		s.chunks = nil
		s.status(StateListening, Message{Message: "Recording started"})
	case EventAudioChunk:
		if s.recording {
			s.chunks = append(s.chunks, ev.Chunk)
		}
	case EventStopRecording:
		s.stopRecording(ctx)
	case EventProcessText:
		s.processText(ctx, ev.Text)
	case EventConfirmOrder:
		s.confirmOrder(ctx, ev.Intent)
	case EventCancelOrder:
		s.pending = nil
		s.status(StateIdle, Message{Message: "Order cancelled"})
	case EventPing:
		s.send(Message{Type: MessagePong})
	default:
		s.sendError("Unknown message type: " + ev.Type)
	}
}

func (s *Session) stopRecording(ctx context.Context) {
	if !s.recording {
		s.sendError(msgNotRecording)
		return
	}
	s.recording = false
	chunks := s.chunks
	s.chunks = nil
	s.status(StateProcessing, Message{Message: "Processing audio..."})

	audio, err := decodeChunks(chunks)
	if err != nil {
		s.fail(fmt.Errorf("failed to decode audio: %w", err))
		return
	}

	s.status(StateTranscribing, Message{Message: "Transcribing audio..."})
	transcript, err := s.pipeline.Transcribe(ctx, audio)
	if err != nil {
		s.fail(err)
		return
	}
	s.send(Message{Type: MessageTranscript, Transcript: transcript})

	s.status(StateParsing, Message{Message: "Parsing intent..."})
	in := s.pipeline.ParseIntent(ctx, transcript)
	s.send(Message{Type: MessageIntent, Intent: &in})

	s.validate(ctx, in, transcript, false)
}

func (s *Session) processText(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		s.sendError(msgNoText)
		return
	}
	s.logger.Info("Processing text command", zap.String("text", text))

	s.status(StateParsing, Message{Message: "Parsing intent..."})
	in := s.pipeline.ParseIntent(ctx, text)
	s.send(Message{Type: MessageIntent, Intent: &in, Transcript: text})

	s.validate(ctx, in, text, true)
}

// validate checks in and records the analysed command. The transcript is
// echoed in the validation message only for typed commands.
func (s *Session) validate(ctx context.Context, in intent.TradeIntent, transcript string, echo bool) {
	s.status(StateValidating, Message{Message: "Validating order..."})
	res := s.pipeline.ValidateOrder(ctx, in)
	s.pipeline.RecordCommand(trader.SourceRealtime, transcript, in, res)

	msg := Message{
		Type:                 MessageValidation,
		Validation:           &res,
		Intent:               &in,
		RequiresConfirmation: true,
	}
	if echo {
		msg.Transcript = transcript
	}
	s.send(msg)

	if res.IsValid {
		s.pending = &in
		s.status(StateAwaitingConfirmation, Message{Message: msgAwaitingConfirm, Intent: &in, Validation: &res})
		return
	}
	s.pending = nil
	s.status(StateValidationFailed, Message{Message: msgValidationFailed, Errors: res.Errors})
}

func (s *Session) confirmOrder(ctx context.Context, payload *intent.TradeIntent) {
	in := payload
	if in == nil {
		in = s.pending
	}
	if in == nil {
		s.sendError(msgIntentRequired)
		return
	}
	order := in.Normalized()
	s.pending = nil

	s.status(StateExecuting, Message{Message: "Executing order..."})
	res := s.pipeline.ValidateOrder(ctx, order)
	if !res.IsValid {
		s.status(StateExecutionFailed, Message{Message: msgValidationFailed, Errors: res.Errors})
		return
	}

	record, err := s.pipeline.CreateOrder(ctx, order, trader.SourceRealtime)
	if err != nil {
		s.logger.Error("Order execution failed", zap.String("intent", order.Summary()), zap.Error(err))
		s.sendError(err.Error())
		s.status(StateExecutionFailed, Message{Message: err.Error()})
		return
	}

	s.send(Message{
		Type:    MessageOrderExecuted,
		Order:   record,
		Intent:  &order,
		Message: fmt.Sprintf("Order executed: %s %d %s", order.Side, order.Quantity, order.Symbol),
	})
	s.status(StateIdle, Message{Message: "Order executed successfully"})
}

func (s *Session) fail(err error) {
	s.logger.Error("Processing failed", zap.Error(err))
	s.sendError(err.Error())
	s.status(StateError, Message{Message: err.Error()})
}

func (s *Session) status(state State, msg Message) {
	s.state = state
	msg.Type = MessageStatus
	msg.State = state
	s.send(msg)
}

func (s *Session) sendError(text string) {
	s.send(Message{Type: MessageError, Error: text})
}

func (s *Session) send(msg Message) {
	msg.Timestamp = s.now().UTC()
	if err := s.sender.Send(msg); err != nil {
		s.logger.Warn("Failed to send message", zap.String("type", msg.Type), zap.Error(err))
	}
}

// decodeChunks decodes the base64 audio chunks in arrival order. The joined
// stream is tried first, then each chunk on its own.
func decodeChunks(chunks []string) ([]byte, error) {
	if audio, err := base64.StdEncoding.DecodeString(strings.Join(chunks, "")); err == nil {
		return audio, nil
	}
	var audio []byte
	for i, c := range chunks {
		b, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		audio = append(audio, b...)
	}
	return audio, nil
}
