package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"voice-trading-assistant-go/internal/config"
)

const (
	elevenLabsBaseURL    = "https://api.elevenlabs.io/v1"
	elevenLabsModel      = "eleven_multilingual_v2"
	placeholderAgentID   = "your_agent_id_here"
	defaultElevenVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

var (
	ErrAPIKeyNotConfigured = errors.New("ElevenLabs API key not configured")
	ErrAgentNotConfigured  = errors.New("ElevenLabs agent ID not configured")
)

// ElevenLabs is the conversational-agent transcription backend and the
// text-to-speech provider.
type ElevenLabs struct {
	client  *resty.Client
	apiKey  string
	agentID string
	voiceID string
}

var _ Backend = (*ElevenLabs)(nil)

func NewElevenLabs(cfg config.Speech) *ElevenLabs {
	voice := cfg.ElevenLabsVoiceID
	if voice == "" {
		voice = defaultElevenVoiceID
	}
	agent := cfg.ElevenLabsAgentID
	if agent == placeholderAgentID {
		agent = ""
	}
	return &ElevenLabs{
		client:  newClient(elevenLabsBaseURL, cfg.TimeoutSeconds),
		apiKey:  cfg.ElevenLabsApiKey,
		agentID: agent,
		voiceID: voice,
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

// Configured reports whether agent transcription can be attempted.
func (e *ElevenLabs) Configured() bool {
	return e.agentID != ""
}

func (e *ElevenLabs) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var result struct {
		Text       string `json:"text"`
		Transcript string `json:"transcript"`
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.apiKey).
		SetFileReader("audio", "audio.webm", bytes.NewReader(audio)).
		SetResult(&result).
		Post("/agents/" + e.agentID + "/transcribe")
	if err != nil || resp.IsError() {
		return "", requestError(e.Name(), resp, err)
	}
	if result.Text != "" {
		return result.Text, nil
	}
	return result.Transcript, nil
}

// Synthesize renders text as MPEG audio.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if e.apiKey == "" {
		return nil, ErrAPIKeyNotConfigured
	}
	body := map[string]any{
		"text":     text,
		"model_id": elevenLabsModel,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "audio/mpeg").
		SetBody(body).
		Post("/text-to-speech/" + e.voiceID)
	if err != nil || resp.IsError() {
		return nil, fmt.Errorf("failed to generate speech: %w", requestError(e.Name(), resp, err))
	}
	return resp.Body(), nil
}

// SignedURL fetches a signed conversation URL for the configured agent.
func (e *ElevenLabs) SignedURL(ctx context.Context) (string, error) {
	if e.apiKey == "" {
		return "", ErrAPIKeyNotConfigured
	}
	if e.agentID == "" {
		return "", ErrAgentNotConfigured
	}
	var result struct {
		SignedURL string `json:"signed_url"`
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.apiKey).
		SetQueryParam("agent_id", e.agentID).
		SetResult(&result).
		Get("/convai/conversation/get-signed-url")
	if err != nil || resp.IsError() {
		return "", requestError(e.Name(), resp, err)
	}
	return result.SignedURL, nil
}

// Status describes the ElevenLabs configuration without exposing the key.
type Status struct {
	APIKeyConfigured  bool    `json:"apiKeyConfigured"`
	AgentIDConfigured bool    `json:"agentIdConfigured"`
	AgentID           *string `json:"agentId"`
}

func (e *ElevenLabs) Status() Status {
	s := Status{
		APIKeyConfigured:  e.apiKey != "",
		AgentIDConfigured: e.agentID != "",
	}
	if e.agentID != "" {
		id := e.agentID
		s.AgentID = &id
	}
	return s
}
