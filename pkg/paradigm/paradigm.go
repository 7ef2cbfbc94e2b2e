// Package paradigm holds the Straussian paradigm model shared by the theory
// engine and the judge, plus the key normaliser for legacy model outputs.
package paradigm

import (
	"encoding/json"
	"fmt"

	"github.com/axialab/axial/pkg/jsonx"
)

// Item is one evidence-bearing element of a paradigm section. Type and
// Horizon are set on consequences only.
type Item struct {
	Text        string   `json:"text"`
	Type        string   `json:"type,omitempty"`
	Horizon     string   `json:"horizon,omitempty"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`

	// ContradictingIDs are fragments the model flagged as cutting against
	// the item. Optional; most outputs omit it.
	ContradictingIDs []string `json:"contradicting_evidence_ids,omitempty"`
}

// UnmarshalJSON tolerates bare-string items, which models occasionally emit
// instead of objects.
func (it *Item) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*it = Item{Text: text}
		return nil
	}

	type plain Item
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("paradigm item is neither string nor object: %w", err)
	}
	*it = Item(obj)
	return nil
}

// Paradigm is the structured grouping around a central category.
type Paradigm struct {
	SelectedCentralCategory string  `json:"selected_central_category"`
	Conditions              []Item  `json:"conditions"`
	Context                 []Item  `json:"context"`
	InterveningConditions   []Item  `json:"intervening_conditions"`
	Actions                 []Item  `json:"actions"`
	Consequences            []Item  `json:"consequences"`
	Propositions            []Item  `json:"propositions"`
	ConfidenceScore         float64 `json:"confidence_score"`
}

// Consequence types and horizons the balance matrix requires.
var (
	ConsequenceTypes    = []string{"material", "social", "institutional"}
	ConsequenceHorizons = []string{"corto_plazo", "largo_plazo"}
)

// keyAliases maps legacy model-output keys to their canonical names. The
// canonical key wins when both appear.
var keyAliases = map[string]string{
	"causal_conditions": "conditions",
	"action_strategies": "actions",
}

// Decode parses raw model output into a normalised paradigm. The raw text
// goes through the robust JSON cascade first, then key aliasing.
func Decode(raw string) (*Paradigm, error) {
	obj, err := jsonx.DecodeObject(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(obj)
}

// Normalize aliases legacy keys, defaults missing sections to empty lists and
// decodes the result into the typed paradigm.
func Normalize(obj map[string]interface{}) (*Paradigm, error) {
	for legacy, canonical := range keyAliases {
		if value, ok := obj[legacy]; ok {
			if _, exists := obj[canonical]; !exists {
				obj[canonical] = value
			}
			delete(obj, legacy)
		}
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode paradigm: %w", err)
	}
	var p Paradigm
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode paradigm: %w", err)
	}

	for _, section := range []*[]Item{&p.Conditions, &p.Context, &p.InterveningConditions, &p.Actions, &p.Consequences, &p.Propositions} {
		if *section == nil {
			*section = []Item{}
		}
	}
	return &p, nil
}

// Sections returns the evidence-bearing sections by name, in a stable order.
func (p *Paradigm) Sections() []struct {
	Name  string
	Items []Item
} {
	return []struct {
		Name  string
		Items []Item
	}{
		{"conditions", p.Conditions},
		{"context", p.Context},
		{"intervening_conditions", p.InterveningConditions},
		{"actions", p.Actions},
		{"consequences", p.Consequences},
		{"propositions", p.Propositions},
	}
}

// EvidenceIDs returns the set of every evidence id cited anywhere in the
// paradigm.
func (p *Paradigm) EvidenceIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, section := range p.Sections() {
		for _, item := range section.Items {
			for _, id := range item.EvidenceIDs {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	return out
}
