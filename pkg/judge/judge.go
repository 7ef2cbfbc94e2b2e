// Package judge is the deterministic theory validator. It is pure and
// synchronous: given a paradigm and its evidence context it produces typed
// error codes, never calling a model or a store.
package judge

import (
	"fmt"
	"math"
	"strings"

	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/paradigm"
)

// Error codes produced by the validator.
const (
	CodeUnknownConstructs        = "UNKNOWN_CONSTRUCTS"
	CodeDomainSanity             = "DOMAIN_SANITY"
	CodeConditionsActionsInvalid = "CONDITIONS_ACTIONS_INVALID"
	CodeConsequencesInvalid      = "CONSEQUENCES_INVALID"
	CodePropositionsInvalid      = "PROPOSITIONS_INVALID"
	CodeContextIntervening       = "CONTEXT_INTERVENING_INVALID"
	CodeBalanceConsequences      = "BALANCE_CONSEQUENCES"
	CodeEvidenceMissing          = "EVIDENCE_MISSING"
	CodeCoverageMinInterviews    = "COVERAGE_MIN_INTERVIEWS"
	CodeCoverageConcentration    = "COVERAGE_CONCENTRATION"
)

// Judge modes.
const (
	ModeStrict   = "strict"
	ModeWarnOnly = "warn_only"
)

// prohibitedTerms are meta-methodological terms that must not leak into the
// substantive content of a theory.
var prohibitedTerms = []string{
	"grounded theory",
	"axial coding",
	"open coding",
	"selective coding",
	"straussian",
	"codificación abierta",
	"codificación axial",
	"muestreo teórico",
}

// Issue is one validator finding.
type Issue struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// Result is the full judge verdict. OK reflects error-severity findings only,
// independent of mode; the pipeline decides whether errors fail the task.
type Result struct {
	OK                     bool    `json:"ok"`
	Mode                   string  `json:"mode"`
	Errors                 []Issue `json:"errors,omitempty"`
	Warnings               []Issue `json:"warnings,omitempty"`
	EffectiveMinInterviews int     `json:"effective_min_interviews"`
	DistinctInterviews     int     `json:"distinct_interviews"`
}

// Input is everything the validator inspects.
type Input struct {
	Paradigm *paradigm.Paradigm

	// FragmentInterview maps cited fragment ids to their interview ids.
	// Fragments absent from the map count as missing evidence.
	FragmentInterview map[string]string

	// MissingEvidence lists cited ids known not to exist in the project.
	MissingEvidence []string

	// KnownCategories are the project's category names.
	KnownCategories []string

	// AvailableInterviews is the completed interview count of the project.
	AvailableInterviews int

	// Mode is the effective judge mode, decided by the rollout policy.
	Mode string
}

// EffectiveMinInterviews computes the coverage floor. With adaptive
// thresholds the configured minimum is downscaled for small projects and
// never exceeds the available interview count.
func EffectiveMinInterviews(cfg *config.JudgeConfig, available int) int {
	effective := cfg.MinInterviews
	if cfg.AdaptiveThresholds != nil && *cfg.AdaptiveThresholds {
		adaptive := int(math.Ceil(float64(available) * cfg.AdaptiveRatio))
		if adaptive < effective {
			effective = adaptive
		}
	}
	if effective > available {
		effective = available
	}
	return effective
}

// Validate runs every check and assembles the verdict.
func Validate(in Input, cfg *config.JudgeConfig) *Result {
	result := &Result{Mode: in.Mode}
	if result.Mode == "" {
		result.Mode = ModeWarnOnly
	}
	p := in.Paradigm

	addError := func(code, detail string) {
		result.Errors = append(result.Errors, Issue{Code: code, Severity: "error", Detail: detail})
	}
	addWarning := func(code, detail string) {
		result.Warnings = append(result.Warnings, Issue{Code: code, Severity: "warning", Detail: detail})
	}

	checkUnknownConstructs(p, in.KnownCategories, cfg.UnknownConstructRatio, addError)
	checkDomainSanity(p, addError)
	checkEvidencePresence(p, cfg.MinPropositions, addError)
	checkBalance(p, cfg.BalanceMinEvidence, addError, addWarning)

	if len(in.MissingEvidence) > 0 {
		addError(CodeEvidenceMissing,
			fmt.Sprintf("%d cited evidence ids do not exist in the project: %s",
				len(in.MissingEvidence), strings.Join(in.MissingEvidence, ", ")))
	}

	checkCoverage(p, in, cfg, result, addError, addWarning)

	result.OK = len(result.Errors) == 0
	return result
}

// checkUnknownConstructs flags a paradigm whose construct vocabulary has
// drifted away from the known category set.
func checkUnknownConstructs(p *paradigm.Paradigm, known []string, ratio float64, addError func(string, string)) {
	knownSet := make(map[string]bool, len(known))
	for _, name := range known {
		knownSet[normalizeName(name)] = true
	}

	total, unknown := 0, 0
	var samples []string
	for _, items := range [][]paradigm.Item{p.Conditions, p.Actions, p.Context, p.InterveningConditions} {
		for _, item := range items {
			name := normalizeName(item.Text)
			if name == "" {
				continue
			}
			total++
			if !knownSet[name] {
				unknown++
				if len(samples) < 3 {
					samples = append(samples, item.Text)
				}
			}
		}
	}

	if total > 0 && float64(unknown)/float64(total) >= ratio {
		addError(CodeUnknownConstructs,
			fmt.Sprintf("%d of %d constructs are outside the known category set (e.g. %s)",
				unknown, total, strings.Join(samples, "; ")))
	}
}

func checkDomainSanity(p *paradigm.Paradigm, addError func(string, string)) {
	var texts []string
	texts = append(texts, p.SelectedCentralCategory)
	for _, section := range p.Sections() {
		for _, item := range section.Items {
			texts = append(texts, item.Text)
		}
	}

	joined := strings.ToLower(strings.Join(texts, "\n"))
	for _, term := range prohibitedTerms {
		if strings.Contains(joined, term) {
			addError(CodeDomainSanity,
				fmt.Sprintf("prohibited meta-methodological term %q appears in the paradigm", term))
			return
		}
	}
}

// checkEvidencePresence verifies that every evidence-bearing item cites at
// least one fragment and that enough propositions exist.
func checkEvidencePresence(p *paradigm.Paradigm, minPropositions int, addError func(string, string)) {
	missing := func(items []paradigm.Item) int {
		n := 0
		for _, item := range items {
			if len(item.EvidenceIDs) == 0 {
				n++
			}
		}
		return n
	}

	if n := missing(p.Conditions) + missing(p.Actions); n > 0 {
		addError(CodeConditionsActionsInvalid,
			fmt.Sprintf("%d conditions/actions items lack evidence_ids", n))
	}
	if n := missing(p.Consequences); n > 0 {
		addError(CodeConsequencesInvalid,
			fmt.Sprintf("%d consequences lack evidence_ids", n))
	}
	if n := missing(p.Context) + missing(p.InterveningConditions); n > 0 {
		addError(CodeContextIntervening,
			fmt.Sprintf("%d context/intervening items lack evidence_ids", n))
	}

	if len(p.Propositions) < minPropositions {
		addError(CodePropositionsInvalid,
			fmt.Sprintf("only %d propositions, at least %d required", len(p.Propositions), minPropositions))
	} else if n := missing(p.Propositions); n > 0 {
		addError(CodePropositionsInvalid,
			fmt.Sprintf("%d propositions lack evidence_ids", n))
	}
}

// checkBalance verifies the {material, social, institutional} x
// {corto_plazo, largo_plazo} consequence matrix. With little evidence in play
// the finding degrades to a warning.
func checkBalance(p *paradigm.Paradigm, balanceMinEvidence int, addError, addWarning func(string, string)) {
	covered := map[string]bool{}
	for _, c := range p.Consequences {
		covered[normalizeName(c.Type)+"/"+normalizeName(c.Horizon)] = true
	}

	var missing []string
	for _, kind := range paradigm.ConsequenceTypes {
		for _, horizon := range paradigm.ConsequenceHorizons {
			if !covered[kind+"/"+horizon] {
				missing = append(missing, kind+"/"+horizon)
			}
		}
	}
	if len(missing) == 0 {
		return
	}

	detail := fmt.Sprintf("consequence matrix incomplete, missing: %s", strings.Join(missing, ", "))
	if len(p.EvidenceIDs()) < balanceMinEvidence {
		addWarning(CodeBalanceConsequences, detail+" (low evidence, degraded to warning)")
		return
	}
	addError(CodeBalanceConsequences, detail)
}

func checkCoverage(p *paradigm.Paradigm, in Input, cfg *config.JudgeConfig, result *Result, addError, addWarning func(string, string)) {
	perInterview := map[string]int{}
	cited := 0
	for _, id := range p.EvidenceIDs() {
		if interviewID, ok := in.FragmentInterview[id]; ok {
			perInterview[interviewID]++
			cited++
		}
	}
	result.DistinctInterviews = len(perInterview)
	result.EffectiveMinInterviews = EffectiveMinInterviews(cfg, in.AvailableInterviews)

	if result.DistinctInterviews < result.EffectiveMinInterviews {
		addError(CodeCoverageMinInterviews,
			fmt.Sprintf("evidence cites %d distinct interviews, %d required",
				result.DistinctInterviews, result.EffectiveMinInterviews))
	}

	if cited > 0 && len(perInterview) > 1 {
		for interviewID, n := range perInterview {
			if float64(n)/float64(cited) >= cfg.MaxSharePerInterview {
				addWarning(CodeCoverageConcentration,
					fmt.Sprintf("interview %s contributes %d of %d cited fragments", interviewID, n, cited))
				break
			}
		}
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
