package metrics

import "testing"

func TestAvgInferenceMsZeroBeforeAnySamples(t *testing.T) {
	r := NewRegistry()
	if got := r.AvgInferenceMs(); got != 0 {
		t.Fatalf("AvgInferenceMs() = %v, want 0", got)
	}
}

func TestAvgInferenceMsComputesMean(t *testing.T) {
	r := NewRegistry()
	r.RecordInference(10)
	r.RecordInference(20)
	r.RecordInference(30)

	if got := r.AvgInferenceMs(); got != 20 {
		t.Fatalf("AvgInferenceMs() = %v, want 20", got)
	}
}

func TestRollingWindowDropsOldestBeyond100(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < windowSize; i++ {
		r.RecordInference(10)
	}
	if got := r.AvgInferenceMs(); got != 10 {
		t.Fatalf("AvgInferenceMs() = %v, want 10", got)
	}

	// One more sample of a very different value should only shift the
	// average by 1/windowSize, not be swamped by history beyond the window.
	r.RecordInference(1010)
	want := (10.0*(windowSize-1) + 1010) / windowSize
	if got := r.AvgInferenceMs(); got != want {
		t.Fatalf("AvgInferenceMs() = %v, want %v", got, want)
	}
}
