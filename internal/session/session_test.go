package session

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/broker"
	"voice-trading-assistant-go/internal/intent"
	"voice-trading-assistant-go/internal/validation"
)

// MockPipeline is a mock implementation of Pipeline.
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Transcribe(ctx context.Context, audio []byte) (string, error) {
	args := m.Called(ctx, audio)
	return args.String(0), args.Error(1)
}

func (m *MockPipeline) ParseIntent(ctx context.Context, text string) intent.TradeIntent {
	return m.Called(ctx, text).Get(0).(intent.TradeIntent)
}

func (m *MockPipeline) ValidateOrder(ctx context.Context, in intent.TradeIntent) validation.Result {
	return m.Called(ctx, in).Get(0).(validation.Result)
}

func (m *MockPipeline) CreateOrder(ctx context.Context, in intent.TradeIntent, source string) (*broker.Order, error) {
	args := m.Called(ctx, in, source)
	order, _ := args.Get(0).(*broker.Order)
	return order, args.Error(1)
}

func (m *MockPipeline) RecordCommand(source, transcript string, in intent.TradeIntent, res validation.Result) {
	m.Called(source, transcript, in, res)
}

type recorder struct {
	messages []Message
}

func (r *recorder) Send(msg Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorder) types() []string {
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Type)
	}
	return out
}

func (r *recorder) states() []State {
	var out []State
	for _, m := range r.messages {
		if m.Type == MessageStatus {
			out = append(out, m.State)
		}
	}
	return out
}

func (r *recorder) last() Message {
	return r.messages[len(r.messages)-1]
}

func (r *recorder) reset() {
	r.messages = nil
}

func valid() validation.Result {
	return validation.Result{IsValid: true, Errors: []string{}, Warnings: []string{}}
}

func invalid(msg string) validation.Result {
	return validation.Result{IsValid: false, Errors: []string{msg}, Warnings: []string{}}
}

func setupTest(t *testing.T) (*Session, *MockPipeline, *recorder) {
	t.Helper()
	pipeline := new(MockPipeline)
	pipeline.On("RecordCommand", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	rec := &recorder{}
	s := New(pipeline, rec, zap.NewNop(), nil)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, pipeline, rec
}

func TestSession_Open(t *testing.T) {
	s, _, rec := setupTest(t)

	s.Open()

	require.Len(t, rec.messages, 1)
	assert.Equal(t, MessageStatus, rec.messages[0].Type)
	assert.Equal(t, StateIdle, rec.messages[0].State)
	assert.Equal(t, "Connected. Ready to receive voice commands.", rec.messages[0].Message)
	assert.False(t, rec.messages[0].Timestamp.IsZero())
	assert.NotEmpty(t, s.ID)
}

func TestSession_VoiceFlow(t *testing.T) {
	// Arrange
	ctx := context.Background()
	s, pipeline, rec := setupTest(t)
	in := intent.ParseRules("buy 10 AAPL")

	pipeline.On("Transcribe", mock.Anything, []byte("abcdefghi")).Return("buy 10 AAPL", nil).Once()
	pipeline.On("ParseIntent", mock.Anything, "buy 10 AAPL").Return(in).Once()
	pipeline.On("ValidateOrder", mock.Anything, in).Return(valid()).Once()

	// Act
	s.Handle(ctx, Event{Type: EventStartRecording})
	for _, part := range []string{"abc", "def", "ghi"} {
		s.Handle(ctx, Event{Type: EventAudioChunk, Chunk: base64.StdEncoding.EncodeToString([]byte(part))})
	}
	s.Handle(ctx, Event{Type: EventStopRecording})

	// Assert
	assert.Equal(t, []State{
		StateListening, StateProcessing, StateTranscribing, StateParsing, StateValidating, StateAwaitingConfirmation,
	}, rec.states())
	assert.Equal(t, []string{
		MessageStatus, MessageStatus, MessageStatus, MessageTranscript,
		MessageStatus, MessageIntent, MessageStatus, MessageValidation, MessageStatus,
	}, rec.types())
	assert.Equal(t, "buy 10 AAPL", rec.messages[3].Transcript)
	assert.True(t, rec.messages[7].RequiresConfirmation)
	assert.Empty(t, rec.messages[7].Transcript)
	assert.Equal(t, StateAwaitingConfirmation, s.State())
	assert.False(t, s.Recording())
	pipeline.AssertExpectations(t)
	pipeline.AssertCalled(t, "RecordCommand", "realtime", "buy 10 AAPL", in, valid())
}

func TestSession_VoiceFlow_ValidationFailed(t *testing.T) {
	ctx := context.Background()
	s, pipeline, rec := setupTest(t)
	in := intent.ParseRules("buy some")

	pipeline.On("Transcribe", mock.Anything, mock.Anything).Return("buy some", nil)
	pipeline.On("ParseIntent", mock.Anything, "buy some").Return(in)
	pipeline.On("ValidateOrder", mock.Anything, in).Return(invalid("Symbol is required"))

	s.Handle(ctx, Event{Type: EventStartRecording})
	s.Handle(ctx, Event{Type: EventAudioChunk, Chunk: base64.StdEncoding.EncodeToString([]byte("pcm"))})
	s.Handle(ctx, Event{Type: EventStopRecording})

	assert.Equal(t, StateValidationFailed, s.State())
	assert.Equal(t, []string{"Symbol is required"}, rec.last().Errors)

	// Nothing is pending, so a bare confirmation is rejected.
	rec.reset()
	s.Handle(ctx, Event{Type: EventConfirmOrder})
	assert.Equal(t, []string{MessageError}, rec.types())
	assert.Equal(t, "Intent is required for order confirmation", rec.last().Error)
	pipeline.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestSession_StopWithoutRecording(t *testing.T) {
	s, pipeline, rec := setupTest(t)

	s.Handle(context.Background(), Event{Type: EventStopRecording})

	require.Len(t, rec.messages, 1)
	assert.Equal(t, MessageError, rec.messages[0].Type)
	assert.Equal(t, "Not currently recording", rec.messages[0].Error)
	assert.Equal(t, StateIdle, s.State())
	pipeline.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestSession_TranscriptionError(t *testing.T) {
	ctx := context.Background()
	s, pipeline, rec := setupTest(t)
	pipeline.On("Transcribe", mock.Anything, mock.Anything).Return("", errors.New("no speech-to-text service available"))

	s.Handle(ctx, Event{Type: EventStartRecording})
	s.Handle(ctx, Event{Type: EventStopRecording})

	assert.Equal(t, StateError, s.State())
	n := len(rec.messages)
	assert.Equal(t, MessageError, rec.messages[n-2].Type)
	assert.Equal(t, "no speech-to-text service available", rec.messages[n-2].Error)
	assert.Equal(t, StateError, rec.messages[n-1].State)
	pipeline.AssertNotCalled(t, "ParseIntent", mock.Anything, mock.Anything)
}

func TestSession_AudioChunkIgnoredWhenNotRecording(t *testing.T) {
	ctx := context.Background()
	s, pipeline, rec := setupTest(t)

	s.Handle(ctx, Event{Type: EventAudioChunk, Chunk: base64.StdEncoding.EncodeToString([]byte("stale"))})
	assert.Empty(t, rec.messages)

	pipeline.On("Transcribe", mock.Anything, []byte("new")).Return("", errors.New("stop here"))
	s.Handle(ctx, Event{Type: EventStartRecording})
	s.Handle(ctx, Event{Type: EventAudioChunk, Chunk: base64.StdEncoding.EncodeToString([]byte("new"))})
	s.Handle(ctx, Event{Type: EventStopRecording})

	pipeline.AssertExpectations(t)
}

func TestSession_ProcessText(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s, _, rec := setupTest(t)

		s.Handle(context.Background(), Event{Type: EventProcessText, Text: "   "})

		require.Len(t, rec.messages, 1)
		assert.Equal(t, "No text provided", rec.messages[0].Error)
		assert.Equal(t, StateIdle, s.State())
	})

	t.Run("Valid", func(t *testing.T) {
		s, pipeline, rec := setupTest(t)
		in := intent.ParseRules("Sell 50 AAPL if it hits 230")
		pipeline.On("ParseIntent", mock.Anything, "Sell 50 AAPL if it hits 230").Return(in)
		pipeline.On("ValidateOrder", mock.Anything, in).Return(valid())

		s.Handle(context.Background(), Event{Type: EventProcessText, Text: "Sell 50 AAPL if it hits 230"})

		assert.Equal(t, []State{StateParsing, StateValidating, StateAwaitingConfirmation}, rec.states())
		assert.Equal(t, "Sell 50 AAPL if it hits 230", rec.messages[1].Transcript)
		assert.Equal(t, MessageIntent, rec.messages[1].Type)
		assert.Equal(t, "Sell 50 AAPL if it hits 230", rec.messages[3].Transcript)
		pipeline.AssertCalled(t, "RecordCommand", "realtime", "Sell 50 AAPL if it hits 230", in, valid())
	})
}

func TestSession_ConfirmOrder(t *testing.T) {
	ctx := context.Background()
	in := intent.ParseRules("buy 10 AAPL")

	t.Run("UsesPendingIntent", func(t *testing.T) {
		s, pipeline, rec := setupTest(t)
		pipeline.On("ParseIntent", mock.Anything, "buy 10 AAPL").Return(in)
		pipeline.On("ValidateOrder", mock.Anything, in).Return(valid())
		pipeline.On("CreateOrder", mock.Anything, in, "realtime").Return(&broker.Order{ID: "ord-1", Status: "accepted"}, nil).Once()

		s.Handle(ctx, Event{Type: EventProcessText, Text: "buy 10 AAPL"})
		rec.reset()
		s.Handle(ctx, Event{Type: EventConfirmOrder})

		assert.Equal(t, []string{MessageStatus, MessageOrderExecuted, MessageStatus}, rec.types())
		assert.Equal(t, StateExecuting, rec.messages[0].State)
		assert.Equal(t, "ord-1", rec.messages[1].Order.ID)
		assert.Equal(t, "Order executed: buy 10 AAPL", rec.messages[1].Message)
		assert.Equal(t, StateIdle, s.State())
		pipeline.AssertExpectations(t)
	})

	t.Run("RevalidationFails", func(t *testing.T) {
		s, pipeline, rec := setupTest(t)
		pipeline.On("ValidateOrder", mock.Anything, in).Return(invalid("Insufficient buying power. Required: $5000.00, Available: $10.00"))

		s.Handle(ctx, Event{Type: EventConfirmOrder, Intent: &in})

		assert.Equal(t, StateExecutionFailed, s.State())
		assert.Equal(t, "Order validation failed", rec.last().Message)
		assert.Len(t, rec.last().Errors, 1)
		pipeline.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("GatewayError", func(t *testing.T) {
		s, pipeline, rec := setupTest(t)
		pipeline.On("ValidateOrder", mock.Anything, in).Return(valid())
		pipeline.On("CreateOrder", mock.Anything, in, "realtime").Return(nil, errors.New("failed to create order: broker down"))

		s.Handle(ctx, Event{Type: EventConfirmOrder, Intent: &in})

		assert.Equal(t, []string{MessageStatus, MessageError, MessageStatus}, rec.types())
		assert.Equal(t, StateExecutionFailed, s.State())
	})
}

func TestSession_CancelPingUnknown(t *testing.T) {
	ctx := context.Background()
	s, pipeline, rec := setupTest(t)
	in := intent.ParseRules("buy 10 AAPL")
	pipeline.On("ParseIntent", mock.Anything, mock.Anything).Return(in)
	pipeline.On("ValidateOrder", mock.Anything, in).Return(valid())

	s.Handle(ctx, Event{Type: EventProcessText, Text: "buy 10 AAPL"})
	s.Handle(ctx, Event{Type: EventCancelOrder})
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, "Order cancelled", rec.last().Message)

	s.Handle(ctx, Event{Type: EventConfirmOrder})
	assert.Equal(t, "Intent is required for order confirmation", rec.last().Error)

	s.Handle(ctx, Event{Type: EventPing})
	assert.Equal(t, MessagePong, rec.last().Type)

	s.Handle(ctx, Event{Type: "dance"})
	assert.Equal(t, "Unknown message type: dance", rec.last().Error)
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_HandleMessage(t *testing.T) {
	s, _, rec := setupTest(t)

	s.HandleMessage(context.Background(), []byte(`{"type":`))
	require.Len(t, rec.messages, 1)
	assert.Equal(t, MessageError, rec.messages[0].Type)
	assert.Contains(t, rec.messages[0].Error, "Invalid message")

	s.HandleMessage(context.Background(), []byte(`{"type":"ping"}`))
	assert.Equal(t, MessagePong, rec.last().Type)
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	s, _, rec := setupTest(t)

	s.Handle(ctx, Event{Type: EventStartRecording})
	s.Handle(ctx, Event{Type: EventAudioChunk, Chunk: "YWJj"})
	s.Close()
	rec.reset()

	s.Handle(ctx, Event{Type: EventPing})
	s.HandleMessage(ctx, []byte("garbage"))

	assert.False(t, s.Recording())
	assert.Empty(t, rec.messages)
	assert.NotPanics(t, s.Close)
}

func TestDecodeChunks(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString

	joined, err := decodeChunks([]string{"YWJj", "ZGVm"})
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), joined)

	padded, err := decodeChunks([]string{enc([]byte("a")), enc([]byte("bc"))})
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), padded)

	_, err = decodeChunks([]string{"!!!"})
	assert.Error(t, err)
}
