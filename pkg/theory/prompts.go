package theory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/axialab/axial/pkg/llm"
)

// domainTemplate injects domain vocabulary into the stage prompts. The
// template key comes from the project or the request.
type domainTemplate struct {
	// Actors names the typical participants of the domain.
	Actors string

	// Dimensions are the critical analytical dimensions to keep in view.
	Dimensions string

	// Lexicon substitutes generic analytical terms with domain terms.
	Lexicon map[string]string

	// Metrics names the outcome measures that matter in the domain.
	Metrics string

	// Extra carries additional per-domain instructions.
	Extra string
}

var domainTemplates = map[string]domainTemplate{
	"generic": {
		Actors:     "participants, their communities and the organisations around them",
		Dimensions: "social relations, material conditions, institutional arrangements",
		Metrics:    "wellbeing, participation, access",
	},
	"education": {
		Actors:     "students, teachers, families and school administrators",
		Dimensions: "learning trajectories, classroom relations, institutional support, family context",
		Lexicon:    map[string]string{"participants": "students and educators", "organisation": "school"},
		Metrics:    "learning outcomes, retention, engagement",
		Extra:      "Distinguish between classroom-level and institution-level phenomena.",
	},
	"ngo": {
		Actors:     "beneficiaries, field staff, volunteers and donor organisations",
		Dimensions: "programme delivery, community trust, resource constraints, sustainability",
		Lexicon:    map[string]string{"participants": "beneficiaries and field staff", "organisation": "the NGO"},
		Metrics:    "programme reach, beneficiary outcomes, community ownership",
		Extra:      "Pay attention to the dependency dynamics between beneficiaries and the organisation.",
	},
	"government": {
		Actors:     "citizens, civil servants, elected officials and public agencies",
		Dimensions: "service delivery, bureaucratic process, legitimacy, accountability",
		Lexicon:    map[string]string{"participants": "citizens and civil servants", "organisation": "the agency"},
		Metrics:    "service coverage, processing times, citizen trust",
		Extra:      "Separate what the policy prescribes from what the street-level practice does.",
	},
	"market_research": {
		Actors:     "consumers, buyers, sellers and brand representatives",
		Dimensions: "purchase drivers, brand perception, usage context, switching behaviour",
		Lexicon:    map[string]string{"participants": "consumers", "organisation": "the brand"},
		Metrics:    "purchase intent, loyalty, perceived value",
		Extra:      "Ground every construct in concrete consumer behaviour, not marketing jargon.",
	},
}

// templateFor resolves a template key, falling back to generic.
func templateFor(key string) domainTemplate {
	if t, ok := domainTemplates[key]; ok {
		return t
	}
	return domainTemplates["generic"]
}

// coherenceRules is stated in every analytical stage so constructs stay
// anchored to the category system.
const coherenceRules = `Coherence rules:
- Any construct introduced in a proposition must appear as a category in conditions, actions, consequences, context or intervening_conditions.
- Use only category names present in the provided material; do not invent new vocabulary.
- Never use methodological jargon in the substantive content.
- Every evidence-bearing item must cite fragment ids from the provided evidence in "evidence_ids".`

// BuildPrompt assembles the (system, user) pair for one pipeline stage. The
// payload is the stage's already-rendered data block.
func BuildPrompt(step, templateKey, payload string) (system, user string) {
	t := templateFor(templateKey)

	domain := fmt.Sprintf(`Domain context:
- Actors: %s.
- Critical dimensions: %s.
- Outcome measures: %s.`, t.Actors, t.Dimensions, t.Metrics)
	if t.Extra != "" {
		domain += "\n- " + t.Extra
	}

	switch step {
	case llm.TaskCentralCategory:
		system = fmt.Sprintf(`You are a qualitative analyst selecting the central category of an emerging theory.

%s

Evaluate every candidate category on explanatory reach, frequency of connection to other categories, and integrative power. Respond with a single JSON object:
{"selected_central_category": "...", "evaluation": [{"category": "...", "centrality": 0.0, "rationale": "..."}], "detailed_reasoning": "..."}

%s`, domain, coherenceRules)

	case llm.TaskBuildParadigm:
		system = fmt.Sprintf(`You are a qualitative analyst building a paradigm model around a given central category.

%s

Respond with a single JSON object containing:
{"selected_central_category": "...",
 "conditions": [{"text": "...", "evidence_ids": ["..."]}],
 "context": [{"text": "...", "evidence_ids": ["..."]}],
 "intervening_conditions": [{"text": "...", "evidence_ids": ["..."]}],
 "actions": [{"text": "...", "evidence_ids": ["..."]}],
 "consequences": [{"text": "...", "type": "material|social|institutional", "horizon": "corto_plazo|largo_plazo", "evidence_ids": ["..."]}],
 "propositions": [{"text": "...", "evidence_ids": ["..."]}],
 "confidence_score": 0.0}

Requirements:
- Cover every consequence type {material, social, institutional} in both horizons {corto_plazo, largo_plazo}.
- Produce at least 5 propositions, each citing evidence.

%s`, domain, coherenceRules)

	case llm.TaskSaturation:
		system = fmt.Sprintf(`You are a qualitative analyst assessing theoretical saturation of a paradigm model.

%s

Identify under-evidenced constructs, thin categories and unexplored comparisons. Respond with a single JSON object:
{"readiness_score": 0.0, "identified_gaps": ["..."], "theoretical_sampling_plan": "..."}`, domain)

	case llm.TaskRepair:
		system = fmt.Sprintf(`You repair one defective section of a paradigm model. Respond with a single JSON object containing only the section named in the instructions, fully corrected. Use only the provided evidence ids and category names; leave everything else untouched.

%s`, domain)

	default:
		system = domain
	}

	user = payload
	if lexicon := renderLexicon(t.Lexicon); lexicon != "" {
		user = lexicon + "\n\n" + payload
	}
	return system, user
}

func renderLexicon(lexicon map[string]string) string {
	if len(lexicon) == 0 {
		return ""
	}
	var pairs []string
	for generic, specific := range lexicon {
		pairs = append(pairs, fmt.Sprintf("%q means %q here", generic, specific))
	}
	// Map order is random; sort for deterministic prompts.
	sort.Strings(pairs)
	return "Terminology: " + strings.Join(pairs, "; ") + "."
}
