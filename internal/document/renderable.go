package document

import "strings"

// Renderable is the read-only projection behind the live preview. Sections
// whose title is blank and fields whose name is blank stay in the editable
// state as scaffolding but are excluded here, so placeholders never pollute
// the rendered document. Subsections survive when they have either a title
// or at least one renderable field. The projection is idempotent.
func Renderable(s Structure) Structure {
	out := s
	out.Sections = nil
	for _, sec := range s.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			continue
		}
		rendered := sec
		rendered.Subsections = nil
		for _, sub := range sec.Subsections {
			fields := make([]Field, 0, len(sub.Fields))
			for _, f := range sub.Fields {
				if strings.TrimSpace(f.FieldName) == "" {
					continue
				}
				fields = append(fields, f)
			}
			if len(fields) == 0 && strings.TrimSpace(sub.Title) == "" {
				continue
			}
			kept := sub
			kept.Fields = fields
			rendered.Subsections = append(rendered.Subsections, kept)
		}
		out.Sections = append(out.Sections, rendered)
	}
	return out
}

// Annotate returns a copy of the provenance overlay restricted to ids that
// still exist in the structure, for rendering layers that badge AI content.
func Annotate(s Structure, prov Provenance) Provenance {
	if len(prov) == 0 {
		return nil
	}
	out := make(Provenance)
	for _, sec := range s.Sections {
		if src, ok := prov[sec.ID]; ok {
			out[sec.ID] = src
		}
		for _, sub := range sec.Subsections {
			if src, ok := prov[sub.ID]; ok {
				out[sub.ID] = src
			}
			for _, f := range sub.Fields {
				if src, ok := prov[f.ID]; ok {
					out[f.ID] = src
				}
			}
		}
	}
	return out
}
