package pipeline

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"queued to splitting", StateQueued, StateSplitting, true},
		{"queued to downloading", StateQueued, StateDownloading, true},
		{"downloading to splitting", StateDownloading, StateSplitting, true},
		{"splitting to transcribing", StateSplitting, StateTranscribing, true},
		{"transcribing to merging", StateTranscribing, StateMerging, true},
		{"merging to rendering", StateMerging, StateRendering, true},
		{"rendering to completed", StateRendering, StateCompleted, true},
		{"cancel while transcribing", StateTranscribing, StateCancelled, true},
		{"cancel while queued", StateQueued, StateCancelled, true},
		{"no skipping ahead", StateQueued, StateTranscribing, false},
		{"no moving backwards", StateMerging, StateTranscribing, false},
		{"merging cannot fail", StateMerging, StateFailed, false},
		{"completed is terminal", StateCompleted, StateQueued, false},
		{"cancelled is terminal", StateCancelled, StateTranscribing, false},
		{"failed is terminal", StateFailed, StateQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed, StateCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateQueued, StateDownloading, StateSplitting, StateTranscribing, StateMerging, StateRendering} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestJobCancel(t *testing.T) {
	job := NewJob("Q3 Call", "/audio/call.mp3")
	if job.State() != StateQueued {
		t.Fatalf("new job state = %s, want queued", job.State())
	}
	if !job.Cancel() {
		t.Fatal("Cancel() on a queued job should succeed")
	}
	if job.State() != StateCancelled {
		t.Errorf("state after cancel = %s", job.State())
	}
	if job.Cancel() {
		t.Error("Cancel() on a cancelled job should report false")
	}
	if err := job.transition(StateSplitting); err == nil {
		t.Error("transition out of cancelled should fail")
	}
}

func TestJobDefaults(t *testing.T) {
	job := NewJob("  ", "/audio/call.mp3")
	if job.Name != "Meeting" {
		t.Errorf("blank name should default, got %q", job.Name)
	}
	if len(job.ID) != 8 {
		t.Errorf("job id %q should be 8 chars", job.ID)
	}

	if !NewJob("x", "https://example.com/a.mp3").Remote() {
		t.Error("https source should be remote")
	}
	if NewJob("x", "/local/a.mp3").Remote() {
		t.Error("local source should not be remote")
	}
}

func TestRegistryCancel(t *testing.T) {
	reg := NewRegistry()
	job := NewJob("call", "/a.mp3")
	reg.Add(job)

	if reg.Cancel("unknown") {
		t.Error("cancelling an unknown id should report false")
	}
	if !reg.Cancel(job.ID) {
		t.Error("cancelling a live job should succeed")
	}
	if job.State() != StateCancelled {
		t.Errorf("job state = %s, want cancelled", job.State())
	}

	reg.Remove(job.ID)
	if _, ok := reg.Get(job.ID); ok {
		t.Error("removed job still in registry")
	}
}
