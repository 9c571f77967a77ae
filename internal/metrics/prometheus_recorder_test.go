package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveStepDuration("build", "checkout", 2*time.Second)
	rec.ObserveJobDuration("build", 5*time.Second)
	rec.ObserveRunDuration(10 * time.Second)
	rec.IncStepOutcome("build", OutcomeSuccess)
	rec.IncStepOutcome("build", OutcomeSuccess)
	rec.IncJobOutcome("build", OutcomeFailed)
	rec.IncRunOutcome(OutcomeSuccess)
	rec.IncDeploy(true)
	rec.IncDeploy(false)
	rec.IncPreviewPublish(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.stepOutcomes.WithLabelValues("build", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.jobOutcomes.WithLabelValues("build", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runOutcomes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.deploys.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.deploys.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.previewPublishs.WithLabelValues("success")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *PrometheusRecorder
	rec.ObserveStepDuration("build", "checkout", time.Second)
	rec.ObserveJobDuration("build", time.Second)
	rec.ObserveRunDuration(time.Second)
	rec.IncStepOutcome("build", OutcomeSuccess)
	rec.IncJobOutcome("build", OutcomeSuccess)
	rec.IncRunOutcome(OutcomeSuccess)
	rec.IncDeploy(true)
	rec.IncPreviewPublish(false)
}

func TestNoopRecorder(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	rec.ObserveStepDuration("build", "checkout", time.Second)
	rec.IncRunOutcome(OutcomeSkipped)
}
