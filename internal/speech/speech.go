// Package speech talks to the Azure Speech REST endpoints for short-audio recognition and synthesis.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAudioContentType = "audio/wav; codecs=audio/pcm; samplerate=16000"
	outputFormat            = "audio-16khz-128kbitrate-mono-mp3"
)

var ErrEmptyText = errors.New("text is required")

type Config struct {
	Key      string
	Region   string
	Language string
	Voice    string
	Timeout  time.Duration

	// Overrides for the regional endpoints, used by tests and sovereign clouds.
	RecognitionURL string
	SynthesisURL   string
}

// StatusError is a non-2xx answer from the speech service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech service returned status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// RecognitionError is returned when the service answered but recognized nothing.
type RecognitionError struct {
	Status string
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("speech not recognized: %s", e.Status)
}

type Client struct {
	key            string
	language       string
	voice          string
	recognitionURL string
	synthesisURL   string
	httpClient     *http.Client
	logger         *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		return nil, fmt.Errorf("speech key is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" && (cfg.RecognitionURL == "" || cfg.SynthesisURL == "") {
		return nil, fmt.Errorf("speech region is required")
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = "en-US"
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = "en-US-JennyNeural"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	recognitionURL := strings.TrimSpace(cfg.RecognitionURL)
	if recognitionURL == "" {
		recognitionURL = "https://" + region + ".stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1"
	}
	synthesisURL := strings.TrimSpace(cfg.SynthesisURL)
	if synthesisURL == "" {
		synthesisURL = "https://" + region + ".tts.speech.microsoft.com/cognitiveservices/v1"
	}

	return &Client{
		key:            key,
		language:       language,
		voice:          voice,
		recognitionURL: recognitionURL,
		synthesisURL:   synthesisURL,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

// Transcribe sends a short audio clip and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" || contentType == "application/octet-stream" {
		contentType = defaultAudioContentType
	}
	endpoint := c.recognitionURL + "?" + url.Values{"language": []string{c.language}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, audio)
	if err != nil {
		return "", fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request recognition: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read recognition response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed recognitionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode recognition response: %w", err)
	}
	if parsed.RecognitionStatus != "Success" {
		c.logger.InfoContext(ctx, "speech not recognized", "status", parsed.RecognitionStatus)
		return "", &RecognitionError{Status: parsed.RecognitionStatus}
	}
	return strings.TrimSpace(parsed.DisplayText), nil
}

// Synthesize returns an MP3 stream. The caller closes it.
func (c *Client) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	ssml, err := c.ssml(text)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.synthesisURL, bytes.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", outputFormat)
	req.Header.Set("User-Agent", "talk2db")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request synthesis: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}

func (c *Client) ssml(text string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<speak version='1.0' xml:lang='")
	if err := xml.EscapeText(&buf, []byte(c.language)); err != nil {
		return nil, fmt.Errorf("escape ssml: %w", err)
	}
	buf.WriteString("'><voice xml:lang='")
	if err := xml.EscapeText(&buf, []byte(c.language)); err != nil {
		return nil, fmt.Errorf("escape ssml: %w", err)
	}
	buf.WriteString("' name='")
	if err := xml.EscapeText(&buf, []byte(c.voice)); err != nil {
		return nil, fmt.Errorf("escape ssml: %w", err)
	}
	buf.WriteString("'>")
	if err := xml.EscapeText(&buf, []byte(text)); err != nil {
		return nil, fmt.Errorf("escape ssml: %w", err)
	}
	buf.WriteString("</voice></speak>")
	return buf.Bytes(), nil
}
