package document

import "encoding/json"

// The validation_rules record is a sparse, backend-interpreted bag. The
// editor inspects required/min/max/options; every other key round-trips
// byte-for-byte through Extra.

type knownRules struct {
	Required bool     `json:"required,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Options  []string `json:"options,omitempty"`
}

func (r *ValidationRules) UnmarshalJSON(data []byte) error {
	var known knownRules
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	delete(all, "required")
	delete(all, "min")
	delete(all, "max")
	delete(all, "options")
	if len(all) == 0 {
		all = nil
	}
	*r = ValidationRules{
		Required: known.Required,
		Min:      known.Min,
		Max:      known.Max,
		Options:  known.Options,
		Extra:    all,
	}
	return nil
}

func (r ValidationRules) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+4)
	for k, v := range r.Extra {
		out[k] = v
	}
	if r.Required {
		out["required"] = json.RawMessage("true")
	}
	if r.Min != nil {
		raw, err := json.Marshal(*r.Min)
		if err != nil {
			return nil, err
		}
		out["min"] = raw
	}
	if r.Max != nil {
		raw, err := json.Marshal(*r.Max)
		if err != nil {
			return nil, err
		}
		out["max"] = raw
	}
	if r.Options != nil {
		raw, err := json.Marshal(r.Options)
		if err != nil {
			return nil, err
		}
		out["options"] = raw
	}
	return json.Marshal(out)
}

// IsZero reports whether no rule keys are set at all, letting callers treat
// the record as absent.
func (r ValidationRules) IsZero() bool {
	return !r.Required && r.Min == nil && r.Max == nil && r.Options == nil && len(r.Extra) == 0
}
