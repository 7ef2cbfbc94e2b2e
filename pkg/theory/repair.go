package theory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/axialab/axial/pkg/jsonx"
	"github.com/axialab/axial/pkg/llm"
	"github.com/axialab/axial/pkg/paradigm"
)

// repairOutcome records which sections were patched, for provenance.
type repairOutcome struct {
	Applied []string `json:"repairs_applied"`
}

// runRepairs applies the best-effort repair loop: consequence coverage,
// proposition count and evidence, and empty context/intervening sections.
// Each repair is one additional LLM call returning a strictly-scoped patch;
// a failed repair leaves the section as it was.
func (e *Engine) runRepairs(ctx context.Context, templateKey string, p *paradigm.Paradigm, index evidenceIndex, knownCategories []string) repairOutcome {
	outcome := repairOutcome{Applied: []string{}}

	if missing := missingConsequenceCells(p); len(missing) > 0 {
		if e.repairConsequences(ctx, templateKey, p, index, missing) {
			outcome.Applied = append(outcome.Applied, "consequences")
		}
	}

	if needsPropositionRepair(p, e.cfg.Judge.MinPropositions) {
		if e.repairPropositions(ctx, templateKey, p, index) {
			outcome.Applied = append(outcome.Applied, "propositions")
		}
	}

	if len(p.Context) == 0 && len(p.InterveningConditions) == 0 {
		if e.repairContextIntervening(ctx, templateKey, p, knownCategories) {
			outcome.Applied = append(outcome.Applied, "context_intervening")
		}
	}

	return outcome
}

func missingConsequenceCells(p *paradigm.Paradigm) []string {
	covered := map[string]bool{}
	for _, c := range p.Consequences {
		covered[strings.ToLower(c.Type)+"/"+strings.ToLower(c.Horizon)] = true
	}
	var missing []string
	for _, kind := range paradigm.ConsequenceTypes {
		for _, horizon := range paradigm.ConsequenceHorizons {
			if !covered[kind+"/"+horizon] {
				missing = append(missing, kind+"/"+horizon)
			}
		}
	}
	return missing
}

func needsPropositionRepair(p *paradigm.Paradigm, minPropositions int) bool {
	if len(p.Propositions) < minPropositions {
		return true
	}
	for _, prop := range p.Propositions {
		if len(prop.EvidenceIDs) == 0 {
			return true
		}
	}
	return false
}

func (e *Engine) repairConsequences(ctx context.Context, templateKey string, p *paradigm.Paradigm, index evidenceIndex, missing []string) bool {
	instructions := fmt.Sprintf(`The "consequences" section is missing these type/horizon cells: %s.

Current consequences:
%s

Available evidence (id: text):
%s

Return {"consequences": [...]} containing the full corrected list, covering every missing cell with items grounded in the evidence.`,
		strings.Join(missing, ", "), mustRender(p.Consequences), renderEvidenceIndex(index))

	var patch struct {
		Consequences []paradigm.Item `json:"consequences"`
	}
	if !e.callRepair(ctx, templateKey, instructions, &patch) || len(patch.Consequences) == 0 {
		return false
	}
	p.Consequences = mergeByName(p.Consequences, patch.Consequences)
	return true
}

func (e *Engine) repairPropositions(ctx context.Context, templateKey string, p *paradigm.Paradigm, index evidenceIndex) bool {
	instructions := fmt.Sprintf(`The "propositions" section is defective: at least %d propositions are required and every one must cite evidence_ids.

Current propositions:
%s

Paradigm summary:
central category: %s
conditions: %s
consequences: %s

Available evidence (id: text):
%s

Return {"propositions": [...]} containing the full corrected list.`,
		e.cfg.Judge.MinPropositions, mustRender(p.Propositions),
		p.SelectedCentralCategory, renderTexts(p.Conditions), renderTexts(p.Consequences),
		renderEvidenceIndex(index))

	var patch struct {
		Propositions []paradigm.Item `json:"propositions"`
	}
	if !e.callRepair(ctx, templateKey, instructions, &patch) || len(patch.Propositions) == 0 {
		return false
	}
	p.Propositions = mergeByName(p.Propositions, patch.Propositions)
	return true
}

// repairContextIntervening lifts constructs referenced by propositions into
// the empty context/intervening sections, restricted to known category terms.
func (e *Engine) repairContextIntervening(ctx context.Context, templateKey string, p *paradigm.Paradigm, knownCategories []string) bool {
	instructions := fmt.Sprintf(`Both "context" and "intervening_conditions" are empty. Extract contextual and intervening constructs from the propositions below, using ONLY terms from the allowed category list.

Propositions:
%s

Allowed categories: %s

Return {"context": [...], "intervening_conditions": [...]}.`,
		renderTexts(p.Propositions), strings.Join(knownCategories, ", "))

	var patch struct {
		Context               []paradigm.Item `json:"context"`
		InterveningConditions []paradigm.Item `json:"intervening_conditions"`
	}
	if !e.callRepair(ctx, templateKey, instructions, &patch) {
		return false
	}
	if len(patch.Context) == 0 && len(patch.InterveningConditions) == 0 {
		return false
	}

	allowed := map[string]bool{}
	for _, name := range knownCategories {
		allowed[normalizeName(name)] = true
	}
	keep := func(items []paradigm.Item) []paradigm.Item {
		var out []paradigm.Item
		for _, item := range items {
			if allowed[normalizeName(item.Text)] {
				out = append(out, item)
			}
		}
		return out
	}

	p.Context = mergeByName(p.Context, keep(patch.Context))
	p.InterveningConditions = mergeByName(p.InterveningConditions, keep(patch.InterveningConditions))
	return len(p.Context) > 0 || len(p.InterveningConditions) > 0
}

func (e *Engine) callRepair(ctx context.Context, templateKey, instructions string, out interface{}) bool {
	system, user := BuildPrompt(llm.TaskRepair, templateKey, instructions)
	result, err := e.gateway.Route(ctx, llm.TaskRepair, system, user, e.cfg.LLM.StageMaxOutput("repair"))
	if err != nil {
		slog.Warn("repair call failed, keeping original section", "error", err)
		return false
	}
	if err := jsonx.Decode(result.Text, out); err != nil {
		slog.Warn("repair patch undecodable, keeping original section", "error", err)
		return false
	}
	return true
}

// mergeByName merges patch items into base, matching on normalised text.
// Patched versions replace matches; new items append.
func mergeByName(base, patch []paradigm.Item) []paradigm.Item {
	merged := make([]paradigm.Item, len(base))
	copy(merged, base)

	position := map[string]int{}
	for i, item := range merged {
		position[normalizeName(item.Text)] = i
	}

	for _, item := range patch {
		name := normalizeName(item.Text)
		if name == "" {
			continue
		}
		if i, ok := position[name]; ok {
			merged[i] = item
		} else {
			position[name] = len(merged)
			merged = append(merged, item)
		}
	}
	return merged
}

func renderEvidenceIndex(index evidenceIndex) string {
	if len(index) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for id, text := range index {
		if len(text) > 300 {
			text = text[:300]
		}
		fmt.Fprintf(&sb, "- %s: %s\n", id, text)
	}
	return sb.String()
}

func renderTexts(items []paradigm.Item) string {
	var texts []string
	for _, item := range items {
		texts = append(texts, item.Text)
	}
	return strings.Join(texts, "; ")
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
