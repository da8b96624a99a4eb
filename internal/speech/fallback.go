package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"

	"github.com/go-resty/resty/v2"

	"voice-trading-assistant-go/internal/config"
)

const (
	whisperBaseURL  = "https://api.openai.com/v1"
	deepgramBaseURL = "https://api.deepgram.com/v1"
	googleBaseURL   = "https://speech.googleapis.com/v1"
)

// Whisper transcribes through the OpenAI audio API.
type Whisper struct {
	client   *resty.Client
	apiKey   string
	language string
}

func NewWhisper(cfg config.Speech) *Whisper {
	return &Whisper{
		client:   newClient(whisperBaseURL, cfg.TimeoutSeconds),
		apiKey:   cfg.OpenAIApiKey,
		language: languageTag(cfg.Language),
	}
}

func (w *Whisper) Name() string     { return "whisper" }
func (w *Whisper) Configured() bool { return w.apiKey != "" }

func (w *Whisper) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var result struct {
		Text string `json:"text"`
	}
	req := w.client.R().
		SetContext(ctx).
		SetAuthToken(w.apiKey).
		SetFileReader("file", "audio.webm", bytes.NewReader(audio)).
		SetFormData(map[string]string{"model": "whisper-1"}).
		SetResult(&result)
	if w.language != "" {
		req.SetFormData(map[string]string{"language": w.language})
	}
	resp, err := req.Post("/audio/transcriptions")
	if err != nil || resp.IsError() {
		return "", requestError(w.Name(), resp, err)
	}
	return result.Text, nil
}

// Deepgram transcribes through the Deepgram prerecorded listen API.
type Deepgram struct {
	client   *resty.Client
	apiKey   string
	language string
}

func NewDeepgram(cfg config.Speech) *Deepgram {
	return &Deepgram{
		client:   newClient(deepgramBaseURL, cfg.TimeoutSeconds),
		apiKey:   cfg.DeepgramApiKey,
		language: cfg.Language,
	}
}

func (d *Deepgram) Name() string     { return "deepgram" }
func (d *Deepgram) Configured() bool { return d.apiKey != "" }

func (d *Deepgram) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Token "+d.apiKey).
		SetHeader("Content-Type", "audio/webm").
		SetQueryParams(map[string]string{
			"model":     "nova-2",
			"language":  d.language,
			"punctuate": "true",
			"diarize":   "false",
		}).
		SetBody(audio).
		SetResult(&result).
		Post("/listen")
	if err != nil || resp.IsError() {
		return "", requestError(d.Name(), resp, err)
	}
	channels := result.Results.Channels
	if len(channels) == 0 || len(channels[0].Alternatives) == 0 {
		return "", errors.New("deepgram returned no alternatives")
	}
	return channels[0].Alternatives[0].Transcript, nil
}

// Google transcribes through Google Cloud Speech-to-Text with an API key.
type Google struct {
	client   *resty.Client
	apiKey   string
	language string
}

func NewGoogle(cfg config.Speech) *Google {
	return &Google{
		client:   newClient(googleBaseURL, cfg.TimeoutSeconds),
		apiKey:   cfg.GoogleApiKey,
		language: cfg.Language,
	}
}

func (g *Google) Name() string     { return "google" }
func (g *Google) Configured() bool { return g.apiKey != "" }

type googleRecognizeRequest struct {
	Config struct {
		Encoding                   string `json:"encoding"`
		SampleRateHertz            int    `json:"sampleRateHertz"`
		LanguageCode               string `json:"languageCode"`
		EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	} `json:"config"`
	Audio struct {
		Content string `json:"content"`
	} `json:"audio"`
}

func (g *Google) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var body googleRecognizeRequest
	body.Config.Encoding = "WEBM_OPUS"
	body.Config.SampleRateHertz = 48000
	body.Config.LanguageCode = g.language
	body.Config.EnableAutomaticPunctuation = true
	body.Audio.Content = base64.StdEncoding.EncodeToString(audio)

	var result struct {
		Results []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result).
		Post("/speech:recognize")
	if err != nil || resp.IsError() {
		return "", requestError(g.Name(), resp, err)
	}
	if len(result.Results) == 0 || len(result.Results[0].Alternatives) == 0 {
		return "", errors.New("google returned no transcription results")
	}
	return result.Results[0].Alternatives[0].Transcript, nil
}

// DefaultBackends returns the backends in priority order, sharing el for the
// agent backend.
func DefaultBackends(cfg config.Speech, el *ElevenLabs) []Backend {
	return []Backend{el, NewWhisper(cfg), NewDeepgram(cfg), NewGoogle(cfg)}
}
