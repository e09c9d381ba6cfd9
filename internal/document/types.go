// Package document holds the editable policy document tree and the pure
// operations that keep order and identity consistent across edits.
package document

import (
	"encoding/json"

	"github.com/google/uuid"
)

// PolicyStatus values assigned by the policy service.
const (
	StatusDraft            = "draft"
	StatusSubmitted        = "submitted"
	StatusApproved         = "approved"
	StatusRejected         = "rejected"
	StatusPendingApproval  = "pending_approval"
	StatusValidationFailed = "validation_failed"
)

// Policy is the top-level entity owned by the policy service. The studio
// holds a cached copy of it during an edit session.
type Policy struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	CurrentVersion int        `json:"current_version"`
	Structure      *Structure `json:"document_structure,omitempty"`
}

// Structure is the editable content tree: header plus ordered sections.
// Annexures and attachments are backend-interpreted payloads and pass
// through untouched.
type Structure struct {
	Header      Header          `json:"header"`
	Sections    []Section       `json:"sections"`
	Annexures   json.RawMessage `json:"annexures,omitempty"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
}

type Header struct {
	Title         string  `json:"title"`
	Organization  string  `json:"organization"`
	EffectiveDate *string `json:"effective_date"`
	ExpiryDate    *string `json:"expiry_date"`
}

type Section struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Order              int          `json:"order"`
	Subsections        []Subsection `json:"subsections"`
	NarrativeContent   string       `json:"narrative_content,omitempty"`
	AIGenerated        bool         `json:"ai_generated,omitempty"`
	Tone               string       `json:"tone,omitempty"`
	CommunicationStyle string       `json:"communication_style,omitempty"`
}

type Subsection struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Order  int     `json:"order"`
	Fields []Field `json:"fields"`
}

// Field types understood by the renderer and the evaluation engine.
const (
	FieldText        = "text"
	FieldNumber      = "number"
	FieldDropdown    = "dropdown"
	FieldMultiSelect = "multi_select"
	FieldDate        = "date"
	FieldBoolean     = "boolean"
	FieldTextarea    = "textarea"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldCurrency    = "currency"
	FieldPercentage  = "percentage"
)

type Field struct {
	ID               string          `json:"id"`
	FieldName        string          `json:"field_name"`
	FieldType        string          `json:"field_type"`
	Order            int             `json:"order"`
	ValidationRules  ValidationRules `json:"validation_rules,omitzero"`
	ConditionalLogic json.RawMessage `json:"conditional_logic,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

// ValidationRules types only the keys the editor itself inspects. The
// backend's full rule grammar stays opaque in Extra and round-trips
// untouched; see rules.go.
type ValidationRules struct {
	Required bool
	Min      *float64
	Max      *float64
	Options  []string
	Extra    map[string]json.RawMessage
}

// Source tags where a piece of content came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceManual   Source = "manual"
	SourceEnhanced Source = "enhanced"
)

// Provenance is an overlay keyed by entity id, kept beside the structure
// rather than inside it so entity contracts stay stable. Projections consult
// it; edit operations never do.
type Provenance map[string]Source

// NewID generates an id for a client-created entity. Ids are assigned once
// and survive reorders and saves; after the first successful save the policy
// service recognizes them as stable keys.
func NewID() string {
	return uuid.NewString()
}
