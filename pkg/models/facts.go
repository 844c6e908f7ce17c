package models

import "encoding/json"

// FactsObject is one entry of ImageFacts.Objects: a detected object rolled
// up for captioning (label, count, and its dominant color/material).
type FactsObject struct {
	Label    string `json:"label"`
	Count    int    `json:"count"`
	Color    string `json:"color,omitempty"`
	Material string `json:"material,omitempty"`
}

// ImageFacts is the structured JSON stored in Caption.facts. It is modeled
// as a tagged record: named fields for every key the caption builder and
// VLM verifier are known to read, plus an Extra rest-map for anything else
// a vision pass or a future provider attaches. MarshalJSON/UnmarshalJSON
// flatten Extra back into the top-level object so the wire shape stays a
// single flat map, matching the source's free-form dict (spec.md DESIGN
// NOTES: "Dynamic dicts as canonical facts").
type ImageFacts struct {
	Room            string        `json:"room,omitempty"`
	Objects         []FactsObject `json:"objects,omitempty"`
	Materials       []string      `json:"materials,omitempty"`
	Colors          []string      `json:"colors,omitempty"`
	Style           []string      `json:"style,omitempty"`
	AnalysisPartial bool          `json:"analysis_partial,omitempty"`

	Extra map[string]any `json:"-"`
}

var factsKnownKeys = map[string]struct{}{
	"room": {}, "objects": {}, "materials": {}, "colors": {}, "style": {},
	"analysis_partial": {},
}

// MarshalJSON flattens Extra into the same object as the named fields so
// the wire representation has no nested "extra" key.
func (f ImageFacts) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+6)
	for k, v := range f.Extra {
		out[k] = v
	}
	if f.Room != "" {
		out["room"] = f.Room
	}
	if len(f.Objects) > 0 {
		out["objects"] = f.Objects
	}
	if len(f.Materials) > 0 {
		out["materials"] = f.Materials
	}
	if len(f.Colors) > 0 {
		out["colors"] = f.Colors
	}
	if len(f.Style) > 0 {
		out["style"] = f.Style
	}
	if f.AnalysisPartial {
		out["analysis_partial"] = f.AnalysisPartial
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the flat wire object into named fields plus Extra
// for every key it doesn't recognize.
func (f *ImageFacts) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type known struct {
		Room            string        `json:"room,omitempty"`
		Objects         []FactsObject `json:"objects,omitempty"`
		Materials       []string      `json:"materials,omitempty"`
		Colors          []string      `json:"colors,omitempty"`
		Style           []string      `json:"style,omitempty"`
		AnalysisPartial bool          `json:"analysis_partial,omitempty"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	f.Room = k.Room
	f.Objects = k.Objects
	f.Materials = k.Materials
	f.Colors = k.Colors
	f.Style = k.Style
	f.AnalysisPartial = k.AnalysisPartial

	f.Extra = make(map[string]any)
	for key, v := range raw {
		if _, known := factsKnownKeys[key]; known {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		f.Extra[key] = val
	}
	if len(f.Extra) == 0 {
		f.Extra = nil
	}
	return nil
}
