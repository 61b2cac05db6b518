package analysisapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageverify/api/internal/analysisapi"
	"imageverify/api/internal/scenario"
)

func TestAnalyze_DecodesDetectorSignals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/analyze", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "general", r.FormValue("scenario"))
		assert.Equal(t, "detailed", r.FormValue("detail_level"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processing_time_ms":842,"details":{"ai_detection_score":0.4,"fft_score":0.2,"metadata_fraud_score":10,"c2pa_present":true,"camera_make":"Samsung"}}`))
	}))
	defer srv.Close()

	c := analysisapi.New(srv.URL, 5*time.Second)
	signals, processingTimeMs, err := c.Analyze(context.Background(), []byte("fake-bytes"), scenario.General, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, signals.AIHeuristic, 0.0001)
	assert.InDelta(t, 10, signals.MetadataRisk, 0.0001)
	assert.True(t, signals.C2PAWatermark)
	assert.Equal(t, "Samsung", signals.CameraMake)
	assert.Equal(t, 842, processingTimeMs)
}

func TestAnalyze_BasicDetailLevelWhenEXIFNotPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "basic", r.FormValue("detail_level"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processing_time_ms":120,"details":{}}`))
	}))
	defer srv.Close()

	c := analysisapi.New(srv.URL, 5*time.Second)
	_, _, err := c.Analyze(context.Background(), []byte("fake-bytes"), scenario.General, false)
	require.NoError(t, err)
}

func TestAnalyze_NonOKStatusIsAnalysisError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := analysisapi.New(srv.URL, 5*time.Second)
	_, _, err := c.Analyze(context.Background(), []byte("x"), scenario.General, false)
	require.Error(t, err)
}
