package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CaptureGaugeBalances(t *testing.T) {
	before := testutil.ToFloat64(activeCaptures)

	m := NewMetrics("test")
	m.RecordCaptureStart()
	if got := testutil.ToFloat64(activeCaptures); got != before+1 {
		t.Errorf("Expected %v active captures, got %v", before+1, got)
	}

	m.RecordCaptureEnd(OutcomePayload)
	m.RecordCaptureEnd(OutcomeFailed) // no matching start
	if got := testutil.ToFloat64(activeCaptures); got != before {
		t.Errorf("Expected gauge back at %v, got %v", before, got)
	}
}

func TestMetrics_CaptureOutcomes(t *testing.T) {
	counter := captureOutcomes.WithLabelValues(OutcomeNoAudio)
	before := testutil.ToFloat64(counter)

	NewMetrics("test").RecordCaptureEnd(OutcomeNoAudio)

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("Expected %v no_audio outcomes, got %v", before+1, got)
	}
}

func TestMetrics_TranscriptionRequests(t *testing.T) {
	success := transcriptionRequests.WithLabelValues("metrics-test", "success")
	failure := transcriptionRequests.WithLabelValues("metrics-test", "error")

	m := NewMetrics("metrics-test")
	m.RecordTranscriptionStart()
	m.RecordTranscriptionEnd(true)
	m.RecordTranscriptionStart()
	m.RecordTranscriptionEnd(false)

	if testutil.ToFloat64(success) != 1 || testutil.ToFloat64(failure) != 1 {
		t.Errorf("Expected one success and one error, got %v and %v",
			testutil.ToFloat64(success), testutil.ToFloat64(failure))
	}
}

func TestNewCorrelationID(t *testing.T) {
	a, b := NewCorrelationID(), NewCorrelationID()
	if a == "" || a == b {
		t.Errorf("Expected distinct correlation IDs, got %q and %q", a, b)
	}
}
