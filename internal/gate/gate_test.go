package gate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"policystudio/api/internal/document"
)

type fakeSaver struct {
	saveFn     func(context.Context, string, document.Structure) (int, error)
	validateFn func(context.Context, string, document.Structure) error
}

func (f *fakeSaver) SaveStructure(ctx context.Context, policyID string, s document.Structure) (int, error) {
	if f.saveFn != nil {
		return f.saveFn(ctx, policyID, s)
	}
	return 1, nil
}

func (f *fakeSaver) ValidateStructure(ctx context.Context, policyID string, s document.Structure) error {
	if f.validateFn != nil {
		return f.validateFn(ctx, policyID, s)
	}
	return nil
}

func TestSaveReturnsVersionOnSuccess(t *testing.T) {
	g := New(&fakeSaver{saveFn: func(context.Context, string, document.Structure) (int, error) {
		return 7, nil
	}})

	version, err := g.Save(context.Background(), "pol-1", document.Structure{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if version != 7 {
		t.Fatalf("expected version 7, got %d", version)
	}
}

func TestSavePassesValidationFailureThroughComplete(t *testing.T) {
	failure := &ValidationError{
		Issues: []Issue{
			{Severity: SeverityError, Category: "structure", Message: "section has no title", Path: "$.sections[0].title"},
			{Severity: SeverityError, Category: "fields", Message: "duplicate field name"},
			{Severity: SeveritySuggestion, Category: "style", Message: "consider a scope section"},
		},
		Suggestions: []string{"Group related fields into one subsection"},
		RenameMap:   map[string]string{"emp name": "employee_name"},
		Message:     "structure rejected",
	}
	g := New(&fakeSaver{saveFn: func(context.Context, string, document.Structure) (int, error) {
		return 0, failure
	}})

	_, err := g.Save(context.Background(), "pol-1", document.Structure{})
	var got *ValidationError
	if !errors.As(err, &got) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got.CountBySeverity(SeverityError) != 2 || got.CountBySeverity(SeveritySuggestion) != 1 {
		t.Fatalf("issue list altered: %+v", got.Issues)
	}
	if len(got.Suggestions) != 1 || got.RenameMap["emp name"] != "employee_name" {
		t.Fatalf("suggestions or rename map lost: %+v", got)
	}
}

func TestSaveDistinguishesOutageFromValidation(t *testing.T) {
	g := New(&fakeSaver{saveFn: func(context.Context, string, document.Structure) (int, error) {
		return 0, fmt.Errorf("save structure: %w", ErrServiceUnavailable)
	}})

	_, err := g.Save(context.Background(), "pol-1", document.Structure{})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		t.Fatalf("outage must not classify as validation failure")
	}
}

func TestSaveWrapsGenericErrors(t *testing.T) {
	boom := errors.New("connection reset")
	g := New(&fakeSaver{saveFn: func(context.Context, string, document.Structure) (int, error) {
		return 0, boom
	}})

	_, err := g.Save(context.Background(), "pol-1", document.Structure{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("generic error misclassified as outage")
	}
}

func TestValidateUsesSamePathWithoutVersion(t *testing.T) {
	var validated bool
	g := New(&fakeSaver{validateFn: func(context.Context, string, document.Structure) error {
		validated = true
		return &ValidationError{Issues: []Issue{{Severity: SeverityWarning, Message: "short title"}}}
	}})

	err := g.Validate(context.Background(), "pol-1", document.Structure{})
	if !validated {
		t.Fatalf("validate never reached the policy service")
	}
	var got *ValidationError
	if !errors.As(err, &got) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
