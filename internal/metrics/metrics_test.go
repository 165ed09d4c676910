package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_ObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveOperation("AcceptJoinRequest", "", 20*time.Millisecond)
	rec.ObserveOperation("AcceptJoinRequest", "session_full", 5*time.Millisecond)
	rec.ObserveOperation("AcceptJoinRequest", "", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.OperationsTotal.WithLabelValues("AcceptJoinRequest", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.OperationsTotal.WithLabelValues("AcceptJoinRequest", "session_full")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.OperationDuration))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() { rec.ObserveOperation("Join", "", time.Second) })
}
