package document

import "fmt"

// Edit operations are pure: they take a structure by value and return the
// transformed structure, leaving the input untouched. Operations referencing
// an id that no longer exists return the structure unchanged; the editing
// surface only ever issues such calls from renders of current state, so a
// stale id is a tolerated no-op rather than an error.

// SectionPatch carries the section fields an update may change. ID and Order
// are deliberately absent; identity never changes and position is owned by
// reorder and delete.
type SectionPatch struct {
	Title              *string `json:"title,omitempty"`
	Description        *string `json:"description,omitempty"`
	NarrativeContent   *string `json:"narrative_content,omitempty"`
	AIGenerated        *bool   `json:"ai_generated,omitempty"`
	Tone               *string `json:"tone,omitempty"`
	CommunicationStyle *string `json:"communication_style,omitempty"`
}

type SubsectionPatch struct {
	Title *string `json:"title,omitempty"`
}

type FieldPatch struct {
	FieldName        *string          `json:"field_name,omitempty"`
	FieldType        *string          `json:"field_type,omitempty"`
	ValidationRules  *ValidationRules `json:"validation_rules,omitempty"`
	ConditionalLogic *RawPatch        `json:"conditional_logic,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
}

// RawPatch wraps an opaque JSON replacement value so a patch can distinguish
// "leave untouched" (nil) from "replace with this blob".
type RawPatch struct {
	Value []byte
}

func (p *RawPatch) UnmarshalJSON(data []byte) error {
	p.Value = append([]byte(nil), data...)
	return nil
}

// AddSection appends a placeholder section and returns its id so callers can
// select it immediately.
func AddSection(s Structure) (Structure, string) {
	sections := cloneSections(s.Sections)
	section := Section{
		ID:          NewID(),
		Title:       fmt.Sprintf("New Section %d", len(sections)+1),
		Order:       len(sections) + 1,
		Subsections: []Subsection{},
	}
	s.Sections = append(sections, section)
	return s, section.ID
}

// UpdateSection merges patch into the section matching sectionID.
func UpdateSection(s Structure, sectionID string, patch SectionPatch) Structure {
	idx := sectionIndex(s.Sections, sectionID)
	if idx < 0 {
		return s
	}
	sections := cloneSections(s.Sections)
	sec := &sections[idx]
	if patch.Title != nil {
		sec.Title = *patch.Title
	}
	if patch.Description != nil {
		sec.Description = *patch.Description
	}
	if patch.NarrativeContent != nil {
		sec.NarrativeContent = *patch.NarrativeContent
	}
	if patch.AIGenerated != nil {
		sec.AIGenerated = *patch.AIGenerated
	}
	if patch.Tone != nil {
		sec.Tone = *patch.Tone
	}
	if patch.CommunicationStyle != nil {
		sec.CommunicationStyle = *patch.CommunicationStyle
	}
	s.Sections = sections
	return s
}

// DeleteSection removes the section and renumbers the remainder. The caller
// owns clearing any selection that pointed at the deleted id.
func DeleteSection(s Structure, sectionID string) Structure {
	idx := sectionIndex(s.Sections, sectionID)
	if idx < 0 {
		return s
	}
	sections := cloneSections(s.Sections)
	sections = append(sections[:idx], sections[idx+1:]...)
	renumberSections(sections)
	s.Sections = sections
	return s
}

// ReorderSections removes the section at from and reinserts it at to, splice
// semantics rather than a swap, then renumbers every section by final
// position. Out-of-range indices leave the structure unchanged.
func ReorderSections(s Structure, from, to int) Structure {
	if from < 0 || from >= len(s.Sections) || to < 0 || to >= len(s.Sections) {
		return s
	}
	sections := cloneSections(s.Sections)
	moved := sections[from]
	sections = append(sections[:from], sections[from+1:]...)
	sections = append(sections[:to], append([]Section{moved}, sections[to:]...)...)
	renumberSections(sections)
	s.Sections = sections
	return s
}

// AddSubsection appends an empty subsection to the given section and returns
// its id.
func AddSubsection(s Structure, sectionID string) (Structure, string) {
	idx := sectionIndex(s.Sections, sectionID)
	if idx < 0 {
		return s, ""
	}
	sections := cloneSections(s.Sections)
	sec := &sections[idx]
	sub := Subsection{
		ID:     NewID(),
		Title:  fmt.Sprintf("New Subsection %d", len(sec.Subsections)+1),
		Order:  len(sec.Subsections) + 1,
		Fields: []Field{},
	}
	sec.Subsections = append(cloneSubsections(sec.Subsections), sub)
	s.Sections = sections
	return s, sub.ID
}

func UpdateSubsection(s Structure, sectionID, subsectionID string, patch SubsectionPatch) Structure {
	idx := sectionIndex(s.Sections, sectionID)
	if idx < 0 {
		return s
	}
	subIdx := subsectionIndex(s.Sections[idx].Subsections, subsectionID)
	if subIdx < 0 {
		return s
	}
	sections := cloneSections(s.Sections)
	subs := cloneSubsections(sections[idx].Subsections)
	if patch.Title != nil {
		subs[subIdx].Title = *patch.Title
	}
	sections[idx].Subsections = subs
	s.Sections = sections
	return s
}

func DeleteSubsection(s Structure, sectionID, subsectionID string) Structure {
	idx := sectionIndex(s.Sections, sectionID)
	if idx < 0 {
		return s
	}
	subIdx := subsectionIndex(s.Sections[idx].Subsections, subsectionID)
	if subIdx < 0 {
		return s
	}
	sections := cloneSections(s.Sections)
	subs := cloneSubsections(sections[idx].Subsections)
	subs = append(subs[:subIdx], subs[subIdx+1:]...)
	renumberSubsections(subs)
	sections[idx].Subsections = subs
	s.Sections = sections
	return s
}

// ReorderSubsections reorders within one section only; ancestor and sibling
// section orders are untouched.
func ReorderSubsections(s Structure, sectionID string, from, to int) Structure {
	idx := sectionIndex(s.Sections, sectionID)
	if idx < 0 {
		return s
	}
	subs := s.Sections[idx].Subsections
	if from < 0 || from >= len(subs) || to < 0 || to >= len(subs) {
		return s
	}
	sections := cloneSections(s.Sections)
	cloned := cloneSubsections(sections[idx].Subsections)
	moved := cloned[from]
	cloned = append(cloned[:from], cloned[from+1:]...)
	cloned = append(cloned[:to], append([]Subsection{moved}, cloned[to:]...)...)
	renumberSubsections(cloned)
	sections[idx].Subsections = cloned
	s.Sections = sections
	return s
}

// AddField appends a text field to the given subsection and returns its id.
func AddField(s Structure, sectionID, subsectionID string) (Structure, string) {
	secIdx, subIdx := fieldParent(s, sectionID, subsectionID)
	if secIdx < 0 {
		return s, ""
	}
	sections := cloneSections(s.Sections)
	subs := cloneSubsections(sections[secIdx].Subsections)
	field := Field{
		ID:        NewID(),
		FieldName: fmt.Sprintf("New Field %d", len(subs[subIdx].Fields)+1),
		FieldType: FieldText,
		Order:     len(subs[subIdx].Fields) + 1,
	}
	subs[subIdx].Fields = append(cloneFields(subs[subIdx].Fields), field)
	sections[secIdx].Subsections = subs
	s.Sections = sections
	return s, field.ID
}

// UpdateField merges patch into the matching field. When the patch changes
// the field type, rules that only make sense for the old type are stripped
// rather than carried along stale.
func UpdateField(s Structure, sectionID, subsectionID, fieldID string, patch FieldPatch) Structure {
	secIdx, subIdx := fieldParent(s, sectionID, subsectionID)
	if secIdx < 0 {
		return s
	}
	fIdx := fieldIndex(s.Sections[secIdx].Subsections[subIdx].Fields, fieldID)
	if fIdx < 0 {
		return s
	}
	sections := cloneSections(s.Sections)
	subs := cloneSubsections(sections[secIdx].Subsections)
	fields := cloneFields(subs[subIdx].Fields)
	f := &fields[fIdx]
	if patch.FieldName != nil {
		f.FieldName = *patch.FieldName
	}
	if patch.ValidationRules != nil {
		f.ValidationRules = *patch.ValidationRules
	}
	if patch.ConditionalLogic != nil {
		f.ConditionalLogic = append([]byte(nil), patch.ConditionalLogic.Value...)
	}
	if patch.Notes != nil {
		f.Notes = *patch.Notes
	}
	if patch.FieldType != nil && *patch.FieldType != f.FieldType {
		f.FieldType = *patch.FieldType
		*f = NormalizeRules(*f)
	}
	subs[subIdx].Fields = fields
	sections[secIdx].Subsections = subs
	s.Sections = sections
	return s
}

func DeleteField(s Structure, sectionID, subsectionID, fieldID string) Structure {
	secIdx, subIdx := fieldParent(s, sectionID, subsectionID)
	if secIdx < 0 {
		return s
	}
	fIdx := fieldIndex(s.Sections[secIdx].Subsections[subIdx].Fields, fieldID)
	if fIdx < 0 {
		return s
	}
	sections := cloneSections(s.Sections)
	subs := cloneSubsections(sections[secIdx].Subsections)
	fields := cloneFields(subs[subIdx].Fields)
	fields = append(fields[:fIdx], fields[fIdx+1:]...)
	renumberFields(fields)
	subs[subIdx].Fields = fields
	sections[secIdx].Subsections = subs
	s.Sections = sections
	return s
}

func ReorderFields(s Structure, sectionID, subsectionID string, from, to int) Structure {
	secIdx, subIdx := fieldParent(s, sectionID, subsectionID)
	if secIdx < 0 {
		return s
	}
	fields := s.Sections[secIdx].Subsections[subIdx].Fields
	if from < 0 || from >= len(fields) || to < 0 || to >= len(fields) {
		return s
	}
	sections := cloneSections(s.Sections)
	subs := cloneSubsections(sections[secIdx].Subsections)
	cloned := cloneFields(subs[subIdx].Fields)
	moved := cloned[from]
	cloned = append(cloned[:from], cloned[from+1:]...)
	cloned = append(cloned[:to], append([]Field{moved}, cloned[to:]...)...)
	renumberFields(cloned)
	subs[subIdx].Fields = cloned
	sections[secIdx].Subsections = subs
	s.Sections = sections
	return s
}

// NormalizeRules drops validation rule keys that do not apply to the field's
// current type: min/max only survive on numeric types, options only on
// choice types. Required and the opaque remainder always survive.
func NormalizeRules(f Field) Field {
	switch f.FieldType {
	case FieldNumber, FieldCurrency, FieldPercentage:
		f.ValidationRules.Options = nil
	case FieldDropdown, FieldMultiSelect:
		f.ValidationRules.Min = nil
		f.ValidationRules.Max = nil
	default:
		f.ValidationRules.Min = nil
		f.ValidationRules.Max = nil
		f.ValidationRules.Options = nil
	}
	return f
}

func sectionIndex(sections []Section, id string) int {
	for i := range sections {
		if sections[i].ID == id {
			return i
		}
	}
	return -1
}

func subsectionIndex(subs []Subsection, id string) int {
	for i := range subs {
		if subs[i].ID == id {
			return i
		}
	}
	return -1
}

func fieldIndex(fields []Field, id string) int {
	for i := range fields {
		if fields[i].ID == id {
			return i
		}
	}
	return -1
}

func fieldParent(s Structure, sectionID, subsectionID string) (int, int) {
	secIdx := sectionIndex(s.Sections, sectionID)
	if secIdx < 0 {
		return -1, -1
	}
	subIdx := subsectionIndex(s.Sections[secIdx].Subsections, subsectionID)
	if subIdx < 0 {
		return -1, -1
	}
	return secIdx, subIdx
}

func renumberSections(sections []Section) {
	for i := range sections {
		sections[i].Order = i + 1
	}
}

func renumberSubsections(subs []Subsection) {
	for i := range subs {
		subs[i].Order = i + 1
	}
}

func renumberFields(fields []Field) {
	for i := range fields {
		fields[i].Order = i + 1
	}
}

func cloneSections(sections []Section) []Section {
	return append([]Section(nil), sections...)
}

func cloneSubsections(subs []Subsection) []Subsection {
	return append([]Subsection(nil), subs...)
}

func cloneFields(fields []Field) []Field {
	return append([]Field(nil), fields...)
}
