// Package ocr is the client for the OCR proxy used to read broker screenshots.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/modules/importer"
)

// Client posts images to the OCR proxy.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates an OCR proxy client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("client", "ocr").Logger(),
	}
}

type ocrRequest struct {
	Image string `json:"image"`
}

type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Recognize sends an image and returns the recognized text.
// Failures reported by the service surface as importer.ErrRecognition.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}

	payload, err := json.Marshal(ocrRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ocr-image", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	var body ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("ocr service returned %d: failed to parse response: %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || body.Error != "" {
		msg := body.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", importer.ErrRecognition, msg)
	}
	if strings.Contains(body.Text, "ERROR:") {
		return "", fmt.Errorf("%w: %s", importer.ErrRecognition, strings.TrimSpace(body.Text))
	}

	c.log.Debug().
		Int("image_bytes", len(image)).
		Int("text_bytes", len(body.Text)).
		Dur("elapsed", time.Since(start)).
		Msg("Image recognized")
	return body.Text, nil
}

// RecognizeCSV recognizes an image and converts the text into import rows.
func (c *Client) RecognizeCSV(ctx context.Context, image []byte) (string, error) {
	text, err := c.Recognize(ctx, image)
	if err != nil {
		return "", err
	}
	return importer.ParseOCRText(text)
}
