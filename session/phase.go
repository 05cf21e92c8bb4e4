package session

import "fmt"

// Phase is the session's current state. The machine cycles through one
// take at a time: record, process, hand off, display, back to idle.
type Phase string

type Event string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseAwaiting   Phase = "awaiting_result"
	PhaseDisplaying Phase = "displaying"
	PhaseError      Phase = "error"
)

const (
	EventToggle     Event = "toggle"
	EventPipelineOK Event = "pipeline_ok"
	EventFail       Event = "fail"
	EventImage      Event = "image"
	EventCancel     Event = "cancel"
	EventAck        Event = "ack"
	EventReset      Event = "reset"
)

// Transition computes the next phase. Invalid pairs return the current
// phase with an error the controller treats as a logged no-op. Fail is
// accepted from every phase so background errors always land somewhere.
func Transition(current Phase, event Event) (Phase, error) {
	if event == EventFail {
		return PhaseError, nil
	}

	switch current {
	case PhaseIdle:
		switch event {
		case EventToggle:
			return PhaseRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseRecording:
		switch event {
		case EventToggle:
			return PhaseProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseProcessing:
		switch event {
		case EventPipelineOK:
			return PhaseAwaiting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseAwaiting:
		switch event {
		case EventImage:
			return PhaseDisplaying, nil
		case EventCancel:
			return PhaseError, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseDisplaying:
		switch event {
		case EventReset:
			return PhaseIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseError:
		switch event {
		case EventAck:
			return PhaseIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown phase %q", current)
	}
}

func invalidTransition(phase Phase, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", phase, event)
}
