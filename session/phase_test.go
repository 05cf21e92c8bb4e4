package session

import (
	"strings"
	"testing"
)

func TestTransitionHappyPath(t *testing.T) {
	steps := []struct {
		event Event
		want  Phase
	}{
		{EventToggle, PhaseRecording},
		{EventToggle, PhaseProcessing},
		{EventPipelineOK, PhaseAwaiting},
		{EventImage, PhaseDisplaying},
		{EventReset, PhaseIdle},
	}

	p := PhaseIdle
	for _, step := range steps {
		next, err := Transition(p, step.event)
		if err != nil {
			t.Fatalf("%s from %s: %v", step.event, p, err)
		}
		if next != step.want {
			t.Fatalf("%s from %s = %s, want %s", step.event, p, next, step.want)
		}
		p = next
	}
}

func TestTransitionFailFromAnyPhase(t *testing.T) {
	phases := []Phase{
		PhaseIdle, PhaseRecording, PhaseProcessing,
		PhaseAwaiting, PhaseDisplaying, PhaseError,
	}
	for _, p := range phases {
		next, err := Transition(p, EventFail)
		if err != nil {
			t.Errorf("fail from %s: %v", p, err)
		}
		if next != PhaseError {
			t.Errorf("fail from %s = %s, want error phase", p, next)
		}
	}
}

func TestTransitionCancelPath(t *testing.T) {
	next, err := Transition(PhaseAwaiting, EventCancel)
	if err != nil {
		t.Fatal(err)
	}
	if next != PhaseError {
		t.Fatalf("cancel from awaiting = %s, want error", next)
	}

	next, err = Transition(next, EventAck)
	if err != nil {
		t.Fatal(err)
	}
	if next != PhaseIdle {
		t.Fatalf("ack from error = %s, want idle", next)
	}
}

func TestTransitionInvalidPairs(t *testing.T) {
	tests := []struct {
		name  string
		phase Phase
		event Event
	}{
		{"idle pipeline_ok", PhaseIdle, EventPipelineOK},
		{"idle image", PhaseIdle, EventImage},
		{"idle cancel", PhaseIdle, EventCancel},
		{"idle ack", PhaseIdle, EventAck},
		{"idle reset", PhaseIdle, EventReset},
		{"recording pipeline_ok", PhaseRecording, EventPipelineOK},
		{"recording image", PhaseRecording, EventImage},
		{"recording cancel", PhaseRecording, EventCancel},
		{"processing toggle", PhaseProcessing, EventToggle},
		{"processing image", PhaseProcessing, EventImage},
		{"processing cancel", PhaseProcessing, EventCancel},
		{"processing reset", PhaseProcessing, EventReset},
		{"awaiting toggle", PhaseAwaiting, EventToggle},
		{"awaiting pipeline_ok", PhaseAwaiting, EventPipelineOK},
		{"awaiting ack", PhaseAwaiting, EventAck},
		{"awaiting reset", PhaseAwaiting, EventReset},
		{"displaying toggle", PhaseDisplaying, EventToggle},
		{"displaying image", PhaseDisplaying, EventImage},
		{"displaying ack", PhaseDisplaying, EventAck},
		{"error toggle", PhaseError, EventToggle},
		{"error image", PhaseError, EventImage},
		{"error cancel", PhaseError, EventCancel},
		{"error reset", PhaseError, EventReset},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.phase, tc.event)
			if err == nil {
				t.Fatalf("%s in %s should be invalid", tc.event, tc.phase)
			}
			if !strings.Contains(err.Error(), "invalid transition") {
				t.Errorf("err = %v", err)
			}
			if next != tc.phase {
				t.Errorf("invalid event moved phase to %s", next)
			}
		})
	}
}

func TestTransitionUnknownPhase(t *testing.T) {
	next, err := Transition(Phase("mystery"), EventToggle)
	if err == nil || !strings.Contains(err.Error(), "unknown phase") {
		t.Errorf("err = %v", err)
	}
	if next != Phase("mystery") {
		t.Errorf("unknown phase changed to %s", next)
	}
}
