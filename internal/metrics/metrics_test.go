package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpload(t *testing.T) {
	before := testutil.ToFloat64(uploadsTotal.WithLabelValues(OutcomeFailure))

	ObserveUpload(errors.New("boom"))

	after := testutil.ToFloat64(uploadsTotal.WithLabelValues(OutcomeFailure))
	assert.InDelta(t, 1.0, after-before, 0.0001)
}

func TestObserveSynthesis(t *testing.T) {
	before := testutil.ToFloat64(synthesesTotal.WithLabelValues("fr", OutcomeSuccess))

	ObserveSynthesis("fr", time.Now().Add(-time.Second), nil)

	after := testutil.ToFloat64(synthesesTotal.WithLabelValues("fr", OutcomeSuccess))
	assert.InDelta(t, 1.0, after-before, 0.0001)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveCheckpointDownload("converter", nil)

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "voice_clone_checkpoint_downloads_total")
}
