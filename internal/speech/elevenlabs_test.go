package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-trading-assistant-go/internal/config"
)

func newTestElevenLabs(t *testing.T, cfg config.Speech, handler http.HandlerFunc) *ElevenLabs {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e := NewElevenLabs(cfg)
	e.client.SetBaseURL(server.URL)
	return e
}

func TestElevenLabs_Transcribe(t *testing.T) {
	e := newTestElevenLabs(t, config.Speech{ElevenLabsApiKey: "xi", ElevenLabsAgentID: "agent-1"},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/agents/agent-1/transcribe", r.URL.Path)
			assert.Equal(t, "xi", r.Header.Get("xi-api-key"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"transcript":"买入100股英伟达"}`))
		})

	require.True(t, e.Configured())
	text, err := e.Transcribe(context.Background(), []byte("audio"))

	require.NoError(t, err)
	assert.Equal(t, "买入100股英伟达", text)
}

func TestElevenLabs_Synthesize(t *testing.T) {
	e := newTestElevenLabs(t, config.Speech{ElevenLabsApiKey: "xi"},
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/text-to-speech/"+defaultElevenVoiceID, r.URL.Path)
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Order placed", body["text"])
			assert.Equal(t, elevenLabsModel, body["model_id"])

			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte{0xFF, 0xFB, 0x90})
		})

	audio, err := e.Synthesize(context.Background(), "Order placed")

	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x90}, audio)
}

func TestElevenLabs_SignedURL(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		e := newTestElevenLabs(t, config.Speech{ElevenLabsApiKey: "xi", ElevenLabsAgentID: "agent-1"},
			func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/convai/conversation/get-signed-url", r.URL.Path)
				assert.Equal(t, "agent-1", r.URL.Query().Get("agent_id"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"signed_url":"wss://example/convai?token=abc"}`))
			})

		url, err := e.SignedURL(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "wss://example/convai?token=abc", url)
	})

	t.Run("MissingConfiguration", func(t *testing.T) {
		_, err := NewElevenLabs(config.Speech{}).SignedURL(context.Background())
		assert.ErrorIs(t, err, ErrAPIKeyNotConfigured)

		_, err = NewElevenLabs(config.Speech{ElevenLabsApiKey: "xi", ElevenLabsAgentID: placeholderAgentID}).SignedURL(context.Background())
		assert.ErrorIs(t, err, ErrAgentNotConfigured)
	})
}

func TestElevenLabs_Status(t *testing.T) {
	s := NewElevenLabs(config.Speech{ElevenLabsApiKey: "xi", ElevenLabsAgentID: placeholderAgentID}).Status()
	assert.True(t, s.APIKeyConfigured)
	assert.False(t, s.AgentIDConfigured)
	assert.Nil(t, s.AgentID)

	s = NewElevenLabs(config.Speech{ElevenLabsAgentID: "agent-1"}).Status()
	assert.False(t, s.APIKeyConfigured)
	assert.True(t, s.AgentIDConfigured)
	require.NotNil(t, s.AgentID)
	assert.Equal(t, "agent-1", *s.AgentID)
}
