package providers

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
)

// transcribeResponse is the JSON shape of /audio/transcriptions.
type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe sends an audio file to the transcription endpoint and
// returns the transcript. language is an ISO-639-1 hint ("pt").
//
// Fields:
//   file     — audio bytes (required)
//   model    — transcription model id
//   language — optional language hint
func (p *OpenAIProvider) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	if filePath == "" {
		return "", fmt.Errorf("transcribe: empty file path")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("transcribe: open audio file %q: %w", filePath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file field: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("transcribe: write audio bytes to form: %w", err)
	}
	if err := w.WriteField("model", p.transcribeModel()); err != nil {
		return "", fmt.Errorf("transcribe: write model field: %w", err)
	}
	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return "", fmt.Errorf("transcribe: write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close multipart writer: %w", err)
	}

	if err := p.wait(ctx); err != nil {
		return "", err
	}

	url := p.apiBase + p.transcribePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request to %q: %w", url, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: request to %q failed: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB cap
	if err != nil {
		return "", fmt.Errorf("transcribe: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: upstream returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result transcribeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("transcribe: parse response JSON: %w", err)
	}

	return result.Text, nil
}

// transcribeModel holds the whisper model id; settable per provider.
func (p *OpenAIProvider) transcribeModel() string {
	if p.sttModel != "" {
		return p.sttModel
	}
	return "whisper-1"
}

// WithTranscribeModel sets the model used by Transcribe.
func (p *OpenAIProvider) WithTranscribeModel(model string) *OpenAIProvider {
	p.sttModel = model
	return p
}
