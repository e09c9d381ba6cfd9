// Package genflow tracks the phases of a chat-driven structure generation
// session and the transitions between them. The generation service decides
// what is still missing; this machine only enforces which moves are legal,
// in particular that nothing is ever submitted without passing through an
// accepted preview.
package genflow

import (
	"errors"
	"fmt"
)

type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseIntentDetected       Phase = "intent_detected"
	PhaseCollectingParameters Phase = "collecting_parameters"
	PhaseSummarizing          Phase = "summarizing"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseGeneratingStructure  Phase = "generating_structure"
	PhasePreviewReady         Phase = "preview_ready"
	PhaseSubmittedForApproval Phase = "submitted_for_approval"
	PhaseCompleted            Phase = "completed"
)

var ErrInvalidTransition = errors.New("invalid phase transition")

// transitions is the complete edge set. submitted_for_approval is reachable
// only from preview_ready; generation failure falls back to
// awaiting_confirmation so collected answers survive a retry.
var transitions = map[Phase][]Phase{
	PhaseIdle:                 {PhaseIntentDetected},
	PhaseIntentDetected:       {PhaseCollectingParameters, PhaseAwaitingConfirmation},
	PhaseCollectingParameters: {PhaseCollectingParameters, PhaseSummarizing, PhaseAwaitingConfirmation},
	PhaseSummarizing:          {PhaseCollectingParameters, PhaseAwaitingConfirmation},
	PhaseAwaitingConfirmation: {PhaseGeneratingStructure, PhaseCollectingParameters},
	PhaseGeneratingStructure:  {PhasePreviewReady, PhaseAwaitingConfirmation},
	PhasePreviewReady:         {PhaseSubmittedForApproval, PhaseCollectingParameters},
	PhaseSubmittedForApproval: {PhaseCompleted},
	PhaseCompleted:            {},
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := transitions[p]
	return ok
}

// CanTransitionTo reports whether moving from p to next is a legal edge.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the chat session is over; further edits happen in
// the structure editor, not the chat flow.
func (p Phase) Terminal() bool {
	return p == PhaseSubmittedForApproval || p == PhaseCompleted
}

func transitionErr(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
