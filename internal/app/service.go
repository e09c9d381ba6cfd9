package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"policystudio/api/internal/ailog"
	"policystudio/api/internal/attachments"
	"policystudio/api/internal/config"
	"policystudio/api/internal/document"
	"policystudio/api/internal/gate"
	"policystudio/api/internal/genflow"
	"policystudio/api/internal/search"
	"policystudio/api/internal/session"
	"policystudio/api/internal/upstream"
)

type policyAPI interface {
	ListPolicies(ctx context.Context) ([]document.Policy, error)
	GetPolicy(ctx context.Context, policyID string) (document.Policy, error)
	CreatePolicy(ctx context.Context, name string) (document.Policy, error)
	DeletePolicy(ctx context.Context, policyID string) error
	SaveStructure(ctx context.Context, policyID string, s document.Structure) (int, error)
	ValidateStructure(ctx context.Context, policyID string, s document.Structure) error
	EnhanceStructure(ctx context.Context, policyID, instruction string) (document.Structure, error)
	RewriteSection(ctx context.Context, policyID string, input upstream.RewriteInput) (upstream.RewriteResult, error)
	CompareVersions(ctx context.Context, policyID string, from, to int) (map[string]any, error)
	Render(ctx context.Context, policyID, format string) ([]byte, string, error)
}

type generationAPI interface {
	ChatTurn(ctx context.Context, sessionID, policyID, message string) (genflow.TurnResult, error)
	GenerateStructure(ctx context.Context, sessionID, policyID, policyName, tone string) (document.Structure, error)
}

type workflowAPI interface {
	Submit(ctx context.Context, policyID, templateID, comments string) error
	Approve(ctx context.Context, policyID, comments string) error
	Reject(ctx context.Context, policyID, comments string) error
}

type sessionStore interface {
	SaveEdit(ctx context.Context, state session.EditState) error
	LoadEdit(ctx context.Context, policyID string) (session.EditState, error)
	DeleteEdit(ctx context.Context, policyID string) error
	SaveChat(ctx context.Context, state *genflow.State) error
	LoadChat(ctx context.Context, sessionID string) (*genflow.State, error)
	DeleteChat(ctx context.Context, sessionID string) error
	AcquireAction(ctx context.Context, scope, action string) error
	ReleaseAction(ctx context.Context, scope, action string)
	Ping(ctx context.Context) error
}

type invocationLog interface {
	Insert(ctx context.Context, entry ailog.Entry) error
	ListRecent(ctx context.Context, policyID string, limit int) ([]ailog.Entry, error)
	Ping(ctx context.Context) error
}

type Service struct {
	cfg         config.Config
	policies    policyAPI
	generation  generationAPI
	workflow    workflowAPI
	sessions    sessionStore
	gate        *gate.Gate
	search      *search.Service
	invocations invocationLog      // nil when DATABASE_URL is not set
	files       *attachments.Store // nil when object storage is not configured
}

func New(cfg config.Config, policies policyAPI, generation generationAPI, workflow workflowAPI, sessions sessionStore) *Service {
	s := &Service{
		cfg:        cfg,
		policies:   policies,
		generation: generation,
		workflow:   workflow,
		sessions:   sessions,
	}
	s.gate = gate.New(policies)
	s.search = search.NewService(nil, s.policyRecords)
	return s
}

// EnableSearch switches policy search over to Meilisearch; the list filter
// remains the fallback when the index is unhealthy.
func (s *Service) EnableSearch(meili *search.Meili) {
	s.search = search.NewService(meili, s.policyRecords)
}

func (s *Service) EnableInvocationLog(store *ailog.Store) {
	s.invocations = store
}

func (s *Service) EnableAttachments(store *attachments.Store) {
	s.files = store
}

// Ready reports per-dependency readiness for the /api/ready probe.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ok := true
	checks := map[string]any{}

	if err := s.sessions.Ping(ctx); err != nil {
		ok = false
		checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["redis"] = map[string]any{"status": "ok"}
	}

	if s.invocations != nil {
		if err := s.invocations.Ping(ctx); err != nil {
			ok = false
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["database"] = map[string]any{"status": "ok"}
		}
	}

	return ok, checks
}

func (s *Service) policyRecords(ctx context.Context) ([]search.Record, error) {
	policies, err := s.policies.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]search.Record, 0, len(policies))
	for _, p := range policies {
		records = append(records, policyRecord(p))
	}
	return records, nil
}

func policyRecord(p document.Policy) search.Record {
	record := search.Record{ID: p.ID, Name: p.Name, Status: p.Status}
	if p.Structure != nil {
		record.Organization = p.Structure.Header.Organization
	}
	return record
}

// ListPolicies returns the full list, or a search result when a query or
// status filter is present.
func (s *Service) ListPolicies(ctx context.Context, q, status string, limit int) (any, error) {
	if q != "" || status != "" {
		resp := s.search.Search(ctx, search.Query{Text: q, FilterStatus: status, Limit: limit})
		return resp, nil
	}
	policies, err := s.policies.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	if policies == nil {
		policies = []document.Policy{}
	}

	records := make([]search.Record, 0, len(policies))
	for _, p := range policies {
		records = append(records, policyRecord(p))
	}
	s.search.IndexPolicies(records)

	return map[string]any{"policies": policies}, nil
}

func (s *Service) GetPolicy(ctx context.Context, policyID string) (document.Policy, error) {
	return s.policies.GetPolicy(ctx, policyID)
}

func (s *Service) CreatePolicy(ctx context.Context, name string) (document.Policy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return document.Policy{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	policy, err := s.policies.CreatePolicy(ctx, name)
	if err != nil {
		return document.Policy{}, err
	}
	s.search.IndexPolicy(policyRecord(policy))
	return policy, nil
}

// DeletePolicy removes the policy upstream, then drops the working edit
// session and the search index entry left behind.
func (s *Service) DeletePolicy(ctx context.Context, policyID string) error {
	if err := s.policies.DeletePolicy(ctx, policyID); err != nil {
		return err
	}
	_ = s.sessions.DeleteEdit(ctx, policyID)
	s.search.DeletePolicy(policyID)
	return nil
}

// EditSessionView is the editing surface's read model: the working structure
// plus the renderer-facing subset and the provenance overlay.
type EditSessionView struct {
	PolicyID    string              `json:"policy_id"`
	BaseVersion int                 `json:"base_version"`
	Structure   document.Structure  `json:"document_structure"`
	Preview     document.Structure  `json:"preview"`
	Provenance  document.Provenance `json:"provenance,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func editView(state session.EditState) EditSessionView {
	return EditSessionView{
		PolicyID:    state.PolicyID,
		BaseVersion: state.BaseVersion,
		Structure:   state.Structure,
		Preview:     document.Renderable(state.Structure),
		Provenance:  document.Annotate(state.Structure, state.Provenance),
		UpdatedAt:   state.UpdatedAt,
	}
}

// StartEditSession caches the policy's current structure in Redis and returns
// the working view. Starting over an existing session reloads from the policy
// service, discarding unsaved edits.
func (s *Service) StartEditSession(ctx context.Context, policyID string) (EditSessionView, error) {
	policy, err := s.policies.GetPolicy(ctx, policyID)
	if err != nil {
		return EditSessionView{}, err
	}

	structure := document.Structure{Sections: []document.Section{}}
	if policy.Structure != nil {
		structure = *policy.Structure
	}
	if policy.Name != "" && structure.Header.Title == "" {
		structure.Header.Title = policy.Name
	}

	state := session.EditState{
		PolicyID:    policyID,
		Structure:   structure,
		Provenance:  document.Provenance{},
		BaseVersion: policy.CurrentVersion,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.sessions.SaveEdit(ctx, state); err != nil {
		return EditSessionView{}, err
	}
	return editView(state), nil
}

func (s *Service) GetEditSession(ctx context.Context, policyID string) (EditSessionView, error) {
	state, err := s.sessions.LoadEdit(ctx, policyID)
	if err != nil {
		return EditSessionView{}, err
	}
	return editView(state), nil
}

func (s *Service) EndEditSession(ctx context.Context, policyID string) error {
	return s.sessions.DeleteEdit(ctx, policyID)
}

// applyEdit runs one pure structure operation against the cached session
// state and stores the result back. The op may also touch the provenance
// overlay through the state pointer.
func (s *Service) applyEdit(ctx context.Context, policyID string, op func(state *session.EditState)) (EditSessionView, error) {
	state, err := s.sessions.LoadEdit(ctx, policyID)
	if err != nil {
		return EditSessionView{}, err
	}
	if state.Provenance == nil {
		state.Provenance = document.Provenance{}
	}
	op(&state)
	state.UpdatedAt = time.Now().UTC()
	if err := s.sessions.SaveEdit(ctx, state); err != nil {
		return EditSessionView{}, err
	}
	return editView(state), nil
}

func (s *Service) AddSection(ctx context.Context, policyID string) (EditSessionView, string, error) {
	var newID string
	view, err := s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure, newID = document.AddSection(state.Structure)
		state.Provenance[newID] = document.SourceManual
	})
	return view, newID, err
}

func (s *Service) UpdateSection(ctx context.Context, policyID, sectionID string, patch document.SectionPatch) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.UpdateSection(state.Structure, sectionID, patch)
		if _, ok := state.Provenance[sectionID]; !ok {
			state.Provenance[sectionID] = document.SourceManual
		}
	})
}

func (s *Service) DeleteSection(ctx context.Context, policyID, sectionID string) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.DeleteSection(state.Structure, sectionID)
	})
}

func (s *Service) ReorderSections(ctx context.Context, policyID string, from, to int) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.ReorderSections(state.Structure, from, to)
	})
}

func (s *Service) AddSubsection(ctx context.Context, policyID, sectionID string) (EditSessionView, string, error) {
	var newID string
	view, err := s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure, newID = document.AddSubsection(state.Structure, sectionID)
		if newID != "" {
			state.Provenance[newID] = document.SourceManual
		}
	})
	return view, newID, err
}

func (s *Service) UpdateSubsection(ctx context.Context, policyID, sectionID, subsectionID string, patch document.SubsectionPatch) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.UpdateSubsection(state.Structure, sectionID, subsectionID, patch)
		if _, ok := state.Provenance[subsectionID]; !ok {
			state.Provenance[subsectionID] = document.SourceManual
		}
	})
}

func (s *Service) DeleteSubsection(ctx context.Context, policyID, sectionID, subsectionID string) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.DeleteSubsection(state.Structure, sectionID, subsectionID)
	})
}

func (s *Service) ReorderSubsections(ctx context.Context, policyID, sectionID string, from, to int) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.ReorderSubsections(state.Structure, sectionID, from, to)
	})
}

func (s *Service) AddField(ctx context.Context, policyID, sectionID, subsectionID string) (EditSessionView, string, error) {
	var newID string
	view, err := s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure, newID = document.AddField(state.Structure, sectionID, subsectionID)
		if newID != "" {
			state.Provenance[newID] = document.SourceManual
		}
	})
	return view, newID, err
}

func (s *Service) UpdateField(ctx context.Context, policyID, sectionID, subsectionID, fieldID string, patch document.FieldPatch) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.UpdateField(state.Structure, sectionID, subsectionID, fieldID, patch)
		if _, ok := state.Provenance[fieldID]; !ok {
			state.Provenance[fieldID] = document.SourceManual
		}
	})
}

func (s *Service) DeleteField(ctx context.Context, policyID, sectionID, subsectionID, fieldID string) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.DeleteField(state.Structure, sectionID, subsectionID, fieldID)
	})
}

func (s *Service) ReorderFields(ctx context.Context, policyID, sectionID, subsectionID string, from, to int) (EditSessionView, error) {
	return s.applyEdit(ctx, policyID, func(state *session.EditState) {
		state.Structure = document.ReorderFields(state.Structure, sectionID, subsectionID, from, to)
	})
}

type SaveResult struct {
	Version int `json:"version"`
}

// Save persists the cached structure through the validation gate. The base
// version advances only when the gate lets the save through.
func (s *Service) Save(ctx context.Context, policyID string) (SaveResult, error) {
	if err := s.sessions.AcquireAction(ctx, policyID, "save"); err != nil {
		return SaveResult{}, err
	}
	defer s.sessions.ReleaseAction(ctx, policyID, "save")

	state, err := s.sessions.LoadEdit(ctx, policyID)
	if err != nil {
		return SaveResult{}, err
	}

	started := time.Now()
	version, err := s.gate.Save(ctx, policyID, state.Structure)
	s.recordInvocation(ctx, policyID, "save", started, err)
	if err != nil {
		return SaveResult{}, err
	}

	state.BaseVersion = version
	state.UpdatedAt = time.Now().UTC()
	if err := s.sessions.SaveEdit(ctx, state); err != nil {
		return SaveResult{}, err
	}

	s.search.IndexPolicy(search.Record{
		ID:           policyID,
		Name:         state.Structure.Header.Title,
		Status:       document.StatusDraft,
		Organization: state.Structure.Header.Organization,
	})
	return SaveResult{Version: version}, nil
}

// Validate runs the cached structure through the same gate without
// persisting; the policy's version is untouched either way.
func (s *Service) Validate(ctx context.Context, policyID string) error {
	if err := s.sessions.AcquireAction(ctx, policyID, "validate"); err != nil {
		return err
	}
	defer s.sessions.ReleaseAction(ctx, policyID, "validate")

	state, err := s.sessions.LoadEdit(ctx, policyID)
	if err != nil {
		return err
	}

	started := time.Now()
	err = s.gate.Validate(ctx, policyID, state.Structure)
	s.recordInvocation(ctx, policyID, "validate", started, err)
	return err
}

// Enhance sends the enhancement instruction upstream and replaces the cached
// structure with the result. Entities the enhancement introduced are marked
// ai_enhanced in the provenance overlay.
func (s *Service) Enhance(ctx context.Context, policyID, instruction string) (EditSessionView, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return EditSessionView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "instruction is required", nil)
	}
	if err := s.sessions.AcquireAction(ctx, policyID, "enhance"); err != nil {
		return EditSessionView{}, err
	}
	defer s.sessions.ReleaseAction(ctx, policyID, "enhance")

	state, err := s.sessions.LoadEdit(ctx, policyID)
	if err != nil {
		return EditSessionView{}, err
	}

	started := time.Now()
	enhanced, err := s.policies.EnhanceStructure(ctx, policyID, instruction)
	s.recordInvocation(ctx, policyID, "enhance", started, err)
	if err != nil {
		return EditSessionView{}, err
	}

	if state.Provenance == nil {
		state.Provenance = document.Provenance{}
	}
	markNewEntities(state.Provenance, state.Structure, enhanced)
	state.Structure = enhanced
	state.UpdatedAt = time.Now().UTC()
	if err := s.sessions.SaveEdit(ctx, state); err != nil {
		return EditSessionView{}, err
	}
	return editView(state), nil
}

// markNewEntities flags every id present in next but absent from prev as
// ai_enhanced.
func markNewEntities(prov document.Provenance, prev, next document.Structure) {
	known := map[string]bool{}
	walkIDs(prev, func(id string) { known[id] = true })
	walkIDs(next, func(id string) {
		if !known[id] {
			prov[id] = document.SourceEnhanced
		}
	})
}

func walkIDs(s document.Structure, visit func(id string)) {
	for _, sec := range s.Sections {
		visit(sec.ID)
		for _, sub := range sec.Subsections {
			visit(sub.ID)
			for _, f := range sub.Fields {
				visit(f.ID)
			}
		}
	}
}

// RewriteSection asks the AI for a narrative pass over one section and
// applies the result to the cached structure.
func (s *Service) RewriteSection(ctx context.Context, policyID, sectionID, action, tone string) (EditSessionView, error) {
	if err := s.sessions.AcquireAction(ctx, policyID, "rewrite:"+sectionID); err != nil {
		return EditSessionView{}, err
	}
	defer s.sessions.ReleaseAction(ctx, policyID, "rewrite:"+sectionID)

	state, err := s.sessions.LoadEdit(ctx, policyID)
	if err != nil {
		return EditSessionView{}, err
	}

	var target *document.Section
	for i := range state.Structure.Sections {
		if state.Structure.Sections[i].ID == sectionID {
			target = &state.Structure.Sections[i]
			break
		}
	}
	if target == nil {
		return EditSessionView{}, domainError(http.StatusNotFound, "NOT_FOUND", "section not found", nil)
	}

	started := time.Now()
	result, err := s.policies.RewriteSection(ctx, policyID, upstream.RewriteInput{
		SectionID:          sectionID,
		Action:             action,
		CurrentContent:     target.NarrativeContent,
		SectionTitle:       target.Title,
		SectionDescription: target.Description,
		Tone:               tone,
	})
	s.recordInvocation(ctx, policyID, "rewrite", started, err)
	if err != nil {
		return EditSessionView{}, err
	}

	narrative := result.NarrativeContent
	aiGenerated := result.AIGenerated
	patch := document.SectionPatch{
		NarrativeContent:   &narrative,
		AIGenerated:        &aiGenerated,
		CommunicationStyle: &result.CommunicationStyle,
	}
	if result.Tone != "" {
		patch.Tone = &result.Tone
	}
	state.Structure = document.UpdateSection(state.Structure, sectionID, patch)
	if state.Provenance == nil {
		state.Provenance = document.Provenance{}
	}
	state.Provenance[sectionID] = document.SourceEnhanced
	state.UpdatedAt = time.Now().UTC()
	if err := s.sessions.SaveEdit(ctx, state); err != nil {
		return EditSessionView{}, err
	}
	return editView(state), nil
}

func (s *Service) CompareVersions(ctx context.Context, policyID string, from, to int) (map[string]any, error) {
	if from <= 0 || to <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from and to must be positive version numbers", nil)
	}
	return s.policies.CompareVersions(ctx, policyID, from, to)
}

// StartChatSession opens a generation session, optionally anchored to an
// existing policy.
func (s *Service) StartChatSession(ctx context.Context, policyID string) (*genflow.State, error) {
	state := genflow.NewState(policyID)
	if err := s.sessions.SaveChat(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) GetChatSession(ctx context.Context, sessionID string) (*genflow.State, error) {
	return s.sessions.LoadChat(ctx, sessionID)
}

// ChatMessage sends one user turn to the generation service and applies the
// response to the session. A second message for the same session while one
// is in flight gets ErrActionInFlight.
func (s *Service) ChatMessage(ctx context.Context, sessionID, message string) (*genflow.State, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "message is required", nil)
	}
	if err := s.sessions.AcquireAction(ctx, sessionID, "chat"); err != nil {
		return nil, err
	}
	defer s.sessions.ReleaseAction(ctx, sessionID, "chat")

	state, err := s.sessions.LoadChat(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state.AppendUser(message)
	started := time.Now()
	turn, err := s.generation.ChatTurn(ctx, sessionID, state.PolicyID, message)
	s.recordInvocation(ctx, state.PolicyID, "chat", started, err)
	if err != nil {
		return nil, err
	}
	if err := state.ApplyChatTurn(turn); err != nil {
		return nil, err
	}
	captureParams(state)

	if err := s.sessions.SaveChat(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// captureParams lifts the well-known parameters the generator collects into
// their dedicated fields.
func captureParams(state *genflow.State) {
	if v, ok := state.CollectedParams["policy_name"].(string); ok && v != "" {
		state.PolicyName = v
	}
	if v, ok := state.CollectedParams["tone"].(string); ok && v != "" {
		state.Tone = v
	}
}

// ConfirmChat runs generation for a confirmed session. On upstream failure
// the session reverts to awaiting_confirmation with everything collected so
// far intact, so confirm can simply be retried.
func (s *Service) ConfirmChat(ctx context.Context, sessionID string) (*genflow.State, error) {
	if err := s.sessions.AcquireAction(ctx, sessionID, "generate"); err != nil {
		return nil, err
	}
	defer s.sessions.ReleaseAction(ctx, sessionID, "generate")

	state, err := s.sessions.LoadChat(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := state.Confirm(); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveChat(ctx, state); err != nil {
		return nil, err
	}

	started := time.Now()
	candidate, genErr := s.generation.GenerateStructure(ctx, sessionID, state.PolicyID, state.PolicyName, state.Tone)
	s.recordInvocation(ctx, state.PolicyID, "generate", started, genErr)
	if genErr != nil {
		if err := state.GenerationFailed(); err != nil {
			return nil, err
		}
		if err := s.sessions.SaveChat(ctx, state); err != nil {
			return nil, err
		}
		return state, genErr
	}

	if err := state.GenerationSucceeded(candidate); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveChat(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// RejectChat declines whatever the session is currently showing: a preview
// falls back to refinement, a summary falls back to gathering.
func (s *Service) RejectChat(ctx context.Context, sessionID string) (*genflow.State, error) {
	state, err := s.sessions.LoadChat(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if state.Phase == genflow.PhasePreviewReady {
		err = state.RejectPreview()
	} else {
		err = state.RejectSummary()
	}
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SaveChat(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SubmitChat persists the candidate through the validation gate, routes the
// policy into the approval workflow, and marks the session submitted. A
// validation failure leaves the session on preview_ready so the user can fix
// and resubmit.
func (s *Service) SubmitChat(ctx context.Context, sessionID, templateID, comments string) (*genflow.State, error) {
	if err := s.sessions.AcquireAction(ctx, sessionID, "submit"); err != nil {
		return nil, err
	}
	defer s.sessions.ReleaseAction(ctx, sessionID, "submit")

	state, err := s.sessions.LoadChat(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Phase != genflow.PhasePreviewReady || state.Candidate == nil {
		return nil, domainError(http.StatusConflict, "NO_PREVIEW", "no generated structure to submit", nil)
	}

	policyID := state.PolicyID
	if policyID == "" {
		name := state.PolicyName
		if name == "" {
			name = state.Candidate.Header.Title
		}
		policy, err := s.policies.CreatePolicy(ctx, name)
		if err != nil {
			return nil, err
		}
		policyID = policy.ID
		state.PolicyID = policyID
	}

	started := time.Now()
	version, err := s.gate.Save(ctx, policyID, *state.Candidate)
	s.recordInvocation(ctx, policyID, "save", started, err)
	if err != nil {
		// Session stays on preview_ready; persist the policy id in case
		// submit created the policy before validation rejected it.
		_ = s.sessions.SaveChat(ctx, state)
		return nil, err
	}

	if err := s.workflow.Submit(ctx, policyID, templateID, comments); err != nil {
		// Same as the validation branch: keep the created policy id so a
		// retry resubmits instead of creating a second policy.
		_ = s.sessions.SaveChat(ctx, state)
		return nil, err
	}
	if err := state.Submitted(); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveChat(ctx, state); err != nil {
		return nil, err
	}

	// Seed the edit session with the persisted candidate so the user can
	// refine it immediately; everything in it is AI-authored.
	prov := document.Provenance{}
	walkIDs(*state.Candidate, func(id string) { prov[id] = document.SourceAI })
	if err := s.sessions.SaveEdit(ctx, session.EditState{
		PolicyID:    policyID,
		Structure:   *state.Candidate,
		Provenance:  prov,
		BaseVersion: version,
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	s.search.IndexPolicy(search.Record{
		ID:           policyID,
		Name:         state.Candidate.Header.Title,
		Status:       document.StatusPendingApproval,
		Organization: state.Candidate.Header.Organization,
	})
	log.Printf("chat session %s submitted policy %s at version %d", sessionID, policyID, version)
	return state, nil
}

// ApprovePolicy routes the approval decision upstream and refreshes the
// search index with the policy's new status.
func (s *Service) ApprovePolicy(ctx context.Context, policyID, comments string) error {
	if err := s.workflow.Approve(ctx, policyID, comments); err != nil {
		return err
	}
	s.refreshIndex(ctx, policyID)
	return nil
}

func (s *Service) RejectPolicy(ctx context.Context, policyID, comments string) error {
	if err := s.workflow.Reject(ctx, policyID, comments); err != nil {
		return err
	}
	s.refreshIndex(ctx, policyID)
	return nil
}

func (s *Service) refreshIndex(ctx context.Context, policyID string) {
	policy, err := s.policies.GetPolicy(ctx, policyID)
	if err != nil {
		log.Printf("refresh index for %s: %v", policyID, err)
		return
	}
	s.search.IndexPolicy(policyRecord(policy))
}

// Download renders the policy in the requested format and names the blob
// after the policy.
func (s *Service) Download(ctx context.Context, policyID, format string) ([]byte, string, string, error) {
	ext, ok := map[string]string{
		upstream.RenderWord: "docx",
		upstream.RenderPDF:  "pdf",
		upstream.RenderJSON: "json",
	}[format]
	if !ok {
		return nil, "", "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be word, pdf or json", nil)
	}

	policy, err := s.policies.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, "", "", err
	}

	blob, contentType, err := s.policies.Render(ctx, policyID, format)
	if err != nil {
		return nil, "", "", err
	}

	name := strings.TrimSpace(policy.Name)
	if name == "" {
		name = "policy"
	}
	return blob, contentType, fmt.Sprintf("%s.%s", name, ext), nil
}

func (s *Service) UploadAttachment(ctx context.Context, policyID, filename, contentType string, r io.Reader, size int64) (string, error) {
	if s.files == nil {
		return "", domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	return s.files.Put(ctx, policyID, filename, contentType, r, size)
}

func (s *Service) GetAttachment(ctx context.Context, key string) (io.ReadCloser, attachments.Object, error) {
	if s.files == nil {
		return nil, attachments.Object{}, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	return s.files.Get(ctx, key)
}

func (s *Service) ListAttachments(ctx context.Context, policyID string) ([]attachments.Object, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	return s.files.List(ctx, policyID)
}

func (s *Service) DeleteAttachment(ctx context.Context, key string) error {
	if s.files == nil {
		return domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	return s.files.Delete(ctx, key)
}

func (s *Service) AIEvents(ctx context.Context, policyID string, limit int) ([]ailog.Entry, error) {
	if s.invocations == nil {
		return nil, domainError(http.StatusServiceUnavailable, "AILOG_UNAVAILABLE", "Invocation log not configured", nil)
	}
	entries, err := s.invocations.ListRecent(ctx, policyID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []ailog.Entry{}
	}
	return entries, nil
}

// recordInvocation writes one row to the AI invocation log when it is
// configured. Logging failures never fail the operation itself.
func (s *Service) recordInvocation(ctx context.Context, policyID, operation string, started time.Time, opErr error) {
	if s.invocations == nil {
		return
	}

	entry := ailog.Entry{
		PolicyID:   policyID,
		Operation:  operation,
		Outcome:    ailog.OutcomeOK,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if opErr != nil {
		var validationErr *gate.ValidationError
		switch {
		case errors.As(opErr, &validationErr):
			entry.Outcome = ailog.OutcomeValidationFailed
			entry.Detail = fmt.Sprintf("%d issues", len(validationErr.Issues))
		case errors.Is(opErr, gate.ErrServiceUnavailable):
			entry.Outcome = ailog.OutcomeUnavailable
		default:
			entry.Outcome = ailog.OutcomeError
			entry.Detail = opErr.Error()
		}
	}

	if err := s.invocations.Insert(ctx, entry); err != nil {
		log.Printf("ailog insert for %s/%s: %v", policyID, operation, err)
	}
}
