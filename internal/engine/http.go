package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gpnscribe/internal/config"

	"github.com/sirupsen/logrus"
)

// httpBackend talks to an OpenAI compatible /v1/audio/transcriptions endpoint.
type httpBackend struct {
	endpoint string
	model    string
	apiKey   string
	language string
	client   *http.Client
	logger   *logrus.Logger
}

type transcriptionResp struct {
	Text string `json:"text"`
}

func newHTTPBackend(cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	return &httpBackend{
		endpoint: cfg.Engine.Endpoint,
		model:    cfg.Engine.APIModel,
		apiKey:   os.Getenv(cfg.Engine.APIKeyEnv),
		language: strings.TrimSpace(cfg.Engine.Language),
		client:   &http.Client{},
		logger:   logger,
	}, nil
}

func (b *httpBackend) Name() string { return "http" }

func (b *httpBackend) NewWorker() (Engine, error) { return &httpEngine{b: b}, nil }

func (b *httpBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

type httpEngine struct {
	b *httpBackend
}

func (e *httpEngine) Transcribe(ctx context.Context, clipPath string) (string, error) {
	f, err := os.Open(clipPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", e.b.model); err != nil {
		return "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if e.b.language != "" && e.b.language != "auto" {
		if err := mw.WriteField("language", e.b.language); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(clipPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.b.endpoint, &body)
	if err != nil {
		return "", err
	}
	if e.b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.b.apiKey)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr transcriptionResp
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return strings.TrimSpace(tr.Text), nil
}

func (e *httpEngine) Close() error { return nil }
