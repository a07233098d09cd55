package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedgebook/internal/modules/importer"
)

func TestRecognizeCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ocr-image", r.URL.Path)

		var req ocrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		img, err := base64.StdEncoding.DecodeString(req.Image)
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), img)

		_ = json.NewEncoder(w).Encode(ocrResponse{Text: "台指權28550 202512W5P 賣出 45.5 2\n"})
	}))
	defer server.Close()

	csv, err := NewClient(server.URL, zerolog.Nop()).RecognizeCSV(context.Background(), []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, importer.Header+"\noption,sell,put,28550,45.5,2", csv)
}

func TestRecognize_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"error token in text", http.StatusOK, `{"text":"ERROR: unreadable"}`},
		{"error field", http.StatusOK, `{"text":"","error":"quota exceeded"}`},
		{"non-200", http.StatusInternalServerError, `{"error":"boom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, zerolog.Nop()).Recognize(context.Background(), []byte("img"))
			assert.True(t, errors.Is(err, importer.ErrRecognition), err)
		})
	}
}

func TestRecognize_EmptyImage(t *testing.T) {
	_, err := NewClient("http://unused", zerolog.Nop()).Recognize(context.Background(), nil)
	assert.Error(t, err)
}
