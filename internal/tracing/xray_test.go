package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDisabledIsPassThrough(t *testing.T) {
	require.NoError(t, Initialize(Config{Enabled: false}, logrus.New()))
	assert.False(t, Enabled())

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	wrapped := Middleware("calibrator", handler)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTraceDisabledReturnsFunctionError(t *testing.T) {
	require.NoError(t, Initialize(Config{}, logrus.New()))

	boom := errors.New("boom")
	err := Trace(context.Background(), "refresh", func(ctx context.Context) error {
		AddAnnotation(ctx, "run_id", "abc")
		AddError(ctx, boom)
		return boom
	})

	assert.ErrorIs(t, err, boom)
}

func TestSamplingRules(t *testing.T) {
	var doc struct {
		Version int `json:"version"`
		Default struct {
			FixedTarget int     `json:"fixed_target"`
			Rate        float64 `json:"rate"`
		} `json:"default"`
	}
	require.NoError(t, json.Unmarshal(samplingRules(0.25), &doc))

	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, 1, doc.Default.FixedTarget)
	assert.Equal(t, 0.25, doc.Default.Rate)
}
