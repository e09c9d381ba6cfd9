package genflow

import (
	"time"

	"github.com/google/uuid"

	"policystudio/api/internal/document"
)

// Message is one chat turn. Messages append in send order; the send control
// stays disabled while a turn is in flight, so turn N's response is always
// applied before turn N+1 is accepted.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnResult is what the generation service reported for one chat turn. The
// service owns completeness; the machine never decides what is missing.
type TurnResult struct {
	SessionID        string         `json:"session_id"`
	AIResponse       string         `json:"ai_response"`
	Phase            string         `json:"phase"`
	CollectedParams  map[string]any `json:"collected_params"`
	MissingParams    []string       `json:"missing_params"`
	IsComplete       bool           `json:"is_complete"`
	SuggestedActions []string       `json:"suggested_actions"`
}

// State is the durable record of one generation session.
type State struct {
	ID               string              `json:"id"`
	PolicyID         string              `json:"policy_id,omitempty"`
	PolicyName       string              `json:"policy_name,omitempty"`
	Tone             string              `json:"tone,omitempty"`
	Phase            Phase               `json:"phase"`
	Messages         []Message           `json:"messages"`
	CollectedParams  map[string]any      `json:"collected_params"`
	MissingParams    []string            `json:"missing_params"`
	IsComplete       bool                `json:"is_complete"`
	SuggestedActions []string            `json:"suggested_actions,omitempty"`
	Candidate        *document.Structure `json:"candidate,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func NewState(policyID string) *State {
	return &State{
		ID:              uuid.NewString(),
		PolicyID:        policyID,
		Phase:           PhaseIdle,
		CollectedParams: map[string]any{},
		UpdatedAt:       time.Now().UTC(),
	}
}

func (s *State) to(next Phase) error {
	if !s.Phase.CanTransitionTo(next) {
		return transitionErr(s.Phase, next)
	}
	s.Phase = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendUser records the outgoing user message for the turn about to be sent.
func (s *State) AppendUser(content string) {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: content, SentAt: time.Now().UTC()})
}

// ApplyChatTurn merges a generation service response into the session:
// records the assistant message, merges collected parameters, replaces the
// missing list, and advances the phase. The first assistant response moves
// idle to intent_detected; a turn reporting is_complete lands on
// awaiting_confirmation.
func (s *State) ApplyChatTurn(r TurnResult) error {
	switch s.Phase {
	case PhaseIdle, PhaseIntentDetected, PhaseCollectingParameters, PhaseSummarizing, PhaseAwaitingConfirmation:
	default:
		return transitionErr(s.Phase, PhaseCollectingParameters)
	}

	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: r.AIResponse, SentAt: time.Now().UTC()})
	if s.CollectedParams == nil {
		s.CollectedParams = map[string]any{}
	}
	for k, v := range r.CollectedParams {
		s.CollectedParams[k] = v
	}
	s.MissingParams = r.MissingParams
	s.IsComplete = r.IsComplete
	s.SuggestedActions = r.SuggestedActions

	if s.Phase == PhaseIdle {
		if err := s.to(PhaseIntentDetected); err != nil {
			return err
		}
	}

	target := PhaseCollectingParameters
	if r.IsComplete {
		target = PhaseAwaitingConfirmation
	} else if Phase(r.Phase) == PhaseSummarizing {
		target = PhaseSummarizing
	}
	if s.Phase == target {
		s.UpdatedAt = time.Now().UTC()
		return nil
	}
	return s.to(target)
}

// Confirm is the explicit user confirmation that starts generation.
func (s *State) Confirm() error {
	return s.to(PhaseGeneratingStructure)
}

// GenerationSucceeded attaches the candidate structure and exposes the
// preview.
func (s *State) GenerationSucceeded(candidate document.Structure) error {
	if err := s.to(PhasePreviewReady); err != nil {
		return err
	}
	s.Candidate = &candidate
	return nil
}

// GenerationFailed reverts to awaiting_confirmation so the user can retry
// without re-answering anything.
func (s *State) GenerationFailed() error {
	return s.to(PhaseAwaitingConfirmation)
}

// RejectPreview discards the candidate but keeps the chat history and every
// collected parameter, returning the session to refinement.
func (s *State) RejectPreview() error {
	if err := s.to(PhaseCollectingParameters); err != nil {
		return err
	}
	s.Candidate = nil
	s.IsComplete = false
	return nil
}

// RejectSummary declines the awaiting_confirmation summary and returns to
// gathering; collected parameters are retained.
func (s *State) RejectSummary() error {
	if s.Phase != PhaseAwaitingConfirmation {
		return transitionErr(s.Phase, PhaseCollectingParameters)
	}
	s.IsComplete = false
	return s.to(PhaseCollectingParameters)
}

// Submitted marks the candidate as persisted and routed for approval. The
// candidate becomes the authoritative structure regardless of the approval
// outcome.
func (s *State) Submitted() error {
	return s.to(PhaseSubmittedForApproval)
}

// Complete closes the session.
func (s *State) Complete() error {
	return s.to(PhaseCompleted)
}
