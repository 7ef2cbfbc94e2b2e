package theory

import (
	"encoding/json"
	"fmt"

	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/paradigm"
)

// evidenceFragment is one retrieved supporting fragment as rendered into a
// stage payload.
type evidenceFragment struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float32 `json:"score,omitempty"`
}

// categoryView is one category as rendered into a stage payload.
type categoryView struct {
	Name           string             `json:"name"`
	Definition     string             `json:"definition,omitempty"`
	CodeDegree     int                `json:"code_degree"`
	FragmentDegree int                `json:"fragment_degree"`
	PageRank       float64            `json:"pagerank,omitempty"`
	Fragments      []evidenceFragment `json:"fragments,omitempty"`
}

// payloadState is the degradable input shared by the LLM stages. Degradation
// mutates the knobs; rendering applies them. The category order is the
// centrality order computed from network metrics.
type payloadState struct {
	categories []categoryView
	network    *graph.NetworkMetrics

	fragsPerCat    int
	fragmentChars  int
	maxCategories  int
	networkTop     int
	stage2Evidence bool
	stage3Evidence bool
}

const (
	minFragsPerCat   = 1
	minFragmentChars = 200
	minCategories    = 8
	minNetworkTop    = 5
)

func newPayloadState(categories []categoryView, network *graph.NetworkMetrics, fragsPerCat int) *payloadState {
	return &payloadState{
		categories:     categories,
		network:        network,
		fragsPerCat:    fragsPerCat,
		fragmentChars:  1500,
		maxCategories:  len(categories),
		networkTop:     30,
		stage2Evidence: true,
		stage3Evidence: true,
	}
}

// degrade applies the next payload reduction and describes it. The ladder is
// fixed: fragments per category, then fragment length, then category count,
// then network size, then evidence stripping.
func (s *payloadState) degrade() string {
	switch {
	case s.fragsPerCat > minFragsPerCat:
		s.fragsPerCat--
		return fmt.Sprintf("frags_per_cat=%d", s.fragsPerCat)

	case s.fragmentChars > minFragmentChars:
		s.fragmentChars /= 2
		if s.fragmentChars < minFragmentChars {
			s.fragmentChars = minFragmentChars
		}
		return fmt.Sprintf("fragment_chars=%d", s.fragmentChars)

	case s.maxCategories > minCategories:
		s.maxCategories = s.maxCategories * 3 / 4
		if s.maxCategories < minCategories {
			s.maxCategories = minCategories
		}
		return fmt.Sprintf("categories=%d", s.maxCategories)

	case s.networkTop > minNetworkTop:
		s.networkTop /= 2
		if s.networkTop < minNetworkTop {
			s.networkTop = minNetworkTop
		}
		return fmt.Sprintf("network_top=%d", s.networkTop)

	case s.stage2Evidence:
		s.stage2Evidence = false
		return "strip_stage2_evidence"

	case s.stage3Evidence:
		s.stage3Evidence = false
		return "strip_stage3_evidence"
	}
	return ""
}

// renderCategories applies the current knobs to the category list. Slim mode
// drops evidence fragments entirely (stage 1).
func (s *payloadState) renderCategories(slim bool) []categoryView {
	n := len(s.categories)
	if n > s.maxCategories {
		n = s.maxCategories
	}

	out := make([]categoryView, n)
	for i := 0; i < n; i++ {
		cat := s.categories[i]
		if slim || !s.stage2Evidence {
			cat.Fragments = nil
		} else {
			frags := cat.Fragments
			if len(frags) > s.fragsPerCat {
				frags = frags[:s.fragsPerCat]
			}
			rendered := make([]evidenceFragment, len(frags))
			for j, f := range frags {
				if len(f.Text) > s.fragmentChars {
					f.Text = f.Text[:s.fragmentChars]
				}
				rendered[j] = f
			}
			cat.Fragments = rendered
		}
		out[i] = cat
	}
	return out
}

type networkPayload struct {
	CategoryCount int                  `json:"category_count"`
	CodeCount     int                  `json:"code_count"`
	FragmentCount int                  `json:"fragment_count"`
	CoOccurrences []graph.CoOccurrence `json:"co_occurrences"`
}

func (s *payloadState) renderNetwork() *networkPayload {
	if s.network == nil {
		return nil
	}
	co := s.network.CoOccurrences
	if len(co) > s.networkTop {
		co = co[:s.networkTop]
	}
	return &networkPayload{
		CategoryCount: s.network.CategoryCount,
		CodeCount:     s.network.CodeCount,
		FragmentCount: s.network.FragmentCount,
		CoOccurrences: co,
	}
}

// centralCategoryPayload is the stage-1 user payload: slim categories plus
// the network summary.
func (s *payloadState) centralCategoryPayload() string {
	return mustRender(map[string]interface{}{
		"categories": s.renderCategories(true),
		"network":    s.renderNetwork(),
	})
}

// paradigmPayload is the stage-2 user payload: the selected central category
// first, then the rest, each with evidence unless stripped.
func (s *payloadState) paradigmPayload(central string) string {
	rendered := s.renderCategories(false)

	ordered := make([]categoryView, 0, len(rendered))
	var rest []categoryView
	for _, cat := range rendered {
		if cat.Name == central {
			ordered = append(ordered, cat)
		} else {
			rest = append(rest, cat)
		}
	}
	ordered = append(ordered, rest...)

	return mustRender(map[string]interface{}{
		"central_category": central,
		"categories":       ordered,
		"network":          s.renderNetwork(),
	})
}

// saturationPayload is the stage-3 user payload: the paradigm itself, with
// evidence ids stripped when the budget demanded it.
func (s *payloadState) saturationPayload(p *paradigm.Paradigm) string {
	if s.stage3Evidence {
		return mustRender(p)
	}

	stripped := *p
	strip := func(items []paradigm.Item) []paradigm.Item {
		out := make([]paradigm.Item, len(items))
		for i, item := range items {
			item.EvidenceIDs = nil
			item.ContradictingIDs = nil
			out[i] = item
		}
		return out
	}
	stripped.Conditions = strip(p.Conditions)
	stripped.Context = strip(p.Context)
	stripped.InterveningConditions = strip(p.InterveningConditions)
	stripped.Actions = strip(p.Actions)
	stripped.Consequences = strip(p.Consequences)
	stripped.Propositions = strip(p.Propositions)
	return mustRender(&stripped)
}

func mustRender(v interface{}) string {
	data, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// saturationResult is the expected stage-3 shape.
type saturationResult struct {
	ReadinessScore          float64  `json:"readiness_score"`
	IdentifiedGaps          []string `json:"identified_gaps"`
	TheoreticalSamplingPlan string   `json:"theoretical_sampling_plan"`
}

// centralCategoryResult is the expected stage-1 shape.
type centralCategoryResult struct {
	SelectedCentralCategory string `json:"selected_central_category"`
	Evaluation              []struct {
		Category   string  `json:"category"`
		Centrality float64 `json:"centrality"`
		Rationale  string  `json:"rationale"`
	} `json:"evaluation"`
	DetailedReasoning string `json:"detailed_reasoning"`
}
