// Package gate enforces that a structure save always round-trips through the
// AI validation check, and classifies the ways that round-trip can fail so
// the surface above can present a validation failure ("fix the issues
// below") differently from an AI backend outage ("try again later").
package gate

import (
	"context"
	"errors"
	"fmt"

	"policystudio/api/internal/document"
)

// Issue severities.
const (
	SeverityError      = "error"
	SeverityWarning    = "warning"
	SeveritySuggestion = "suggestion"
)

// Issue is one validation finding. Path is an optional JSON-path locator
// into the submitted structure.
type Issue struct {
	Severity string `json:"severity"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

// ValidationError carries the complete validation outcome. Nothing here may
// be truncated or summarized away before it reaches the user.
type ValidationError struct {
	Issues      []Issue           `json:"issues"`
	Suggestions []string          `json:"suggestions"`
	RenameMap   map[string]string `json:"normalized_field_names"`
	Message     string            `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed with %d issues", len(e.Issues))
}

// CountBySeverity is a presentation helper used by the HTTP layer and tests.
func (e *ValidationError) CountBySeverity(severity string) int {
	n := 0
	for _, issue := range e.Issues {
		if issue.Severity == severity {
			n++
		}
	}
	return n
}

// ErrServiceUnavailable marks an AI backend outage, an infrastructure fault
// rather than a content problem.
var ErrServiceUnavailable = errors.New("ai service unavailable")

// StructureSaver is the policy service surface the gate sits in front of.
// SaveStructure persists and returns the new version; ValidateStructure uses
// the identical path without advancing the version.
type StructureSaver interface {
	SaveStructure(ctx context.Context, policyID string, s document.Structure) (int, error)
	ValidateStructure(ctx context.Context, policyID string, s document.Structure) error
}

type Gate struct {
	saver StructureSaver
}

func New(saver StructureSaver) *Gate {
	return &Gate{saver: saver}
}

// Save persists the structure. There is no bypass: the policy service runs
// the AI validation inside the save, and a rejected save leaves the policy's
// current version untouched.
func (g *Gate) Save(ctx context.Context, policyID string, s document.Structure) (int, error) {
	version, err := g.saver.SaveStructure(ctx, policyID, s)
	if err != nil {
		return 0, classify(err, "save structure")
	}
	return version, nil
}

// Validate previews the issues a save would raise. Same path, same failure
// modes, no version change.
func (g *Gate) Validate(ctx context.Context, policyID string, s document.Structure) error {
	if err := g.saver.ValidateStructure(ctx, policyID, s); err != nil {
		return classify(err, "validate structure")
	}
	return nil
}

// classify pins every failure to the taxonomy: validation failures and
// outages pass through typed, anything else becomes a wrapped generic error
// so no raw transport detail leaks upward.
func classify(err error, op string) error {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return ErrServiceUnavailable
	}
	return fmt.Errorf("%s: %w", op, err)
}
