package document

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRenderableFiltersBlankTitlesAndNames(t *testing.T) {
	s := Structure{
		Sections: []Section{
			{ID: "s1", Title: "Scope", Order: 1, Subsections: []Subsection{
				{ID: "u1", Title: "Coverage", Order: 1, Fields: []Field{
					{ID: "f1", FieldName: "region", FieldType: FieldText, Order: 1},
					{ID: "f2", FieldName: "   ", FieldType: FieldText, Order: 2},
				}},
				{ID: "u2", Title: "", Order: 2, Fields: []Field{
					{ID: "f3", FieldName: "", FieldType: FieldText, Order: 1},
				}},
			}},
			{ID: "s2", Title: "  ", Order: 2},
			{ID: "s3", Title: "Enforcement", Order: 3},
		},
	}

	r := Renderable(s)

	if len(r.Sections) != 2 {
		t.Fatalf("expected 2 renderable sections, got %d", len(r.Sections))
	}
	if r.Sections[0].ID != "s1" || r.Sections[1].ID != "s3" {
		t.Fatalf("wrong sections kept: %s, %s", r.Sections[0].ID, r.Sections[1].ID)
	}
	subs := r.Sections[0].Subsections
	if len(subs) != 1 || subs[0].ID != "u1" {
		t.Fatalf("expected only titled subsection u1, got %+v", subs)
	}
	if len(subs[0].Fields) != 1 || subs[0].Fields[0].ID != "f1" {
		t.Fatalf("expected only named field f1, got %+v", subs[0].Fields)
	}

	// Scaffolding stays in the editable state.
	if len(s.Sections) != 3 {
		t.Fatalf("projection must not modify the editable structure")
	}
}

func TestRenderableIsIdempotent(t *testing.T) {
	s := Structure{
		Sections: []Section{
			{ID: "s1", Title: "Scope", Order: 1, Subsections: []Subsection{
				{ID: "u1", Title: "", Order: 1, Fields: []Field{
					{ID: "f1", FieldName: "region", FieldType: FieldText, Order: 1},
					{ID: "f2", FieldName: "", FieldType: FieldText, Order: 2},
				}},
			}},
			{ID: "s2", Title: "", Order: 2},
		},
	}

	once := Renderable(s)
	twice := Renderable(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Renderable is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestAnnotateRestrictsOverlayToLiveIDs(t *testing.T) {
	s := Structure{
		Sections: []Section{
			{ID: "s1", Title: "Scope", Subsections: []Subsection{
				{ID: "u1", Fields: []Field{{ID: "f1", FieldName: "region"}}},
			}},
		},
	}
	prov := Provenance{"s1": SourceAI, "f1": SourceEnhanced, "gone": SourceManual}

	got := Annotate(s, prov)

	if len(got) != 2 || got["s1"] != SourceAI || got["f1"] != SourceEnhanced {
		t.Fatalf("unexpected overlay: %v", got)
	}
}

func TestValidationRulesRoundTripPreservesOpaqueKeys(t *testing.T) {
	raw := []byte(`{"required":true,"min":2,"options":["A","B"],"pattern":"^[a-z]+$","custom":{"depth":3}}`)

	var rules ValidationRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !rules.Required || rules.Min == nil || *rules.Min != 2 || len(rules.Options) != 2 {
		t.Fatalf("known keys not decoded: %+v", rules)
	}
	if len(rules.Extra) != 2 {
		t.Fatalf("expected 2 opaque keys, got %v", rules.Extra)
	}

	encoded, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(encoded, &back); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if back["pattern"] != "^[a-z]+$" {
		t.Fatalf("opaque key lost: %v", back)
	}
	if custom, ok := back["custom"].(map[string]any); !ok || custom["depth"] != float64(3) {
		t.Fatalf("nested opaque key lost: %v", back)
	}
}
