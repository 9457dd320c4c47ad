package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf_token", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "రోడ్డు", body["inputs"])
		w.Header().Set("Content-Type", "audio/flac")
		_, _ = w.Write([]byte("fLaC-bytes"))
	}))
	defer srv.Close()

	h := NewHTTPSynthesizer(srv.URL, "hf_token", ".flac", 0)
	assert.Equal(t, "flac", h.Extension())

	res, err := h.Synthesize(context.Background(), "రోడ్డు", Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte("fLaC-bytes"), res.Audio)
	assert.Equal(t, "audio/flac", res.ContentType)
}

func TestHTTPSynthesizerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "model loading",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
			},
		},
		{
			name: "json body with 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"error":"bad input"}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPSynthesizer(srv.URL, "", "", 0).Synthesize(context.Background(), "hi there", Options{})
			assert.Error(t, err)
		})
	}
}
