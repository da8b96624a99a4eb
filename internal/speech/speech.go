// Package speech converts recorded audio to text through a prioritized list
// of hosted speech-to-text backends, and text back to audio through ElevenLabs.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"voice-trading-assistant-go/internal/metrics"
)

var (
	// ErrNoBackend is returned when every configured backend failed or none is configured.
	ErrNoBackend = errors.New("no speech-to-text service available")
	// ErrEmptyAudio is returned for an empty audio buffer.
	ErrEmptyAudio = errors.New("audio buffer is empty")

	errEmptyTranscript = errors.New("backend returned an empty transcript")
)

const configureHint = "please configure at least one of ELEVENLAB_AGENT_ID, OPENAI_API_KEY, DEEPGRAM_API_KEY or GOOGLE_API_KEY"

// Backend is a single speech-to-text provider.
type Backend interface {
	Name() string
	Configured() bool
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Transcriber tries its backends in order until one returns a transcript.
type Transcriber struct {
	backends []Backend
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewTranscriber creates a transcriber over backends, highest priority first.
func NewTranscriber(logger *zap.Logger, m *metrics.Metrics, backends ...Backend) *Transcriber {
	return &Transcriber{
		backends: backends,
		logger:   logger.Named("speech"),
		metrics:  m,
	}
}

// Transcribe submits the full buffer and returns the complete transcript.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("failed to transcribe audio: %w", ErrEmptyAudio)
	}

	for _, b := range t.backends {
		if !b.Configured() {
			continue
		}
		text, err := b.Transcribe(ctx, audio)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = errEmptyTranscript
		}
		t.metrics.TranscriptionAttempt(b.Name(), err == nil)
		if err != nil {
			t.logger.Warn("Transcription failed, trying next backend",
				zap.String("backend", b.Name()),
				zap.Error(err))
			if ctx.Err() != nil {
				return "", fmt.Errorf("failed to transcribe audio: %w", ctx.Err())
			}
			continue
		}
		t.logger.Debug("Transcribed audio", zap.String("backend", b.Name()), zap.Int("bytes", len(audio)))
		return text, nil
	}

	t.logger.Warn("No speech-to-text backend produced a transcript")
	return "", fmt.Errorf("failed to transcribe audio: %w: %s", ErrNoBackend, configureHint)
}

// Backends lists the names of the configured backends in priority order.
func (t *Transcriber) Backends() []string {
	names := make([]string, 0, len(t.backends))
	for _, b := range t.backends {
		if b.Configured() {
			names = append(names, b.Name())
		}
	}
	return names
}

func newClient(baseURL string, timeoutSeconds int) *resty.Client {
	c := resty.New().SetBaseURL(baseURL)
	if timeoutSeconds > 0 {
		c.SetTimeout(time.Duration(timeoutSeconds) * time.Second)
	}
	return c
}

func requestError(backend string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", backend, err)
	}
	return fmt.Errorf("%s request failed with status %s: %s", backend, resp.Status(), resp.String())
}

// languageTag returns the primary subtag, e.g. "en" for "en-US".
func languageTag(language string) string {
	if i := strings.IndexByte(language, '-'); i > 0 {
		return language[:i]
	}
	return language
}
