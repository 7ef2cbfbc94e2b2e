package judge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/paradigm"
)

func judgeConfig() *config.JudgeConfig {
	cfg := &config.JudgeConfig{}
	cfg.SetDefaults()
	return cfg
}

// validParadigm builds a paradigm that passes every check: full consequence
// matrix, five evidenced propositions, constructs matching known categories.
func validParadigm() *paradigm.Paradigm {
	p := &paradigm.Paradigm{
		SelectedCentralCategory: "belonging",
		Conditions:              []paradigm.Item{{Text: "precarity", EvidenceIDs: []string{"f1"}}},
		Context:                 []paradigm.Item{{Text: "community", EvidenceIDs: []string{"f2"}}},
		InterveningConditions:   []paradigm.Item{{Text: "trust", EvidenceIDs: []string{"f3"}}},
		Actions:                 []paradigm.Item{{Text: "mutual aid", EvidenceIDs: []string{"f4"}}},
	}
	for _, kind := range paradigm.ConsequenceTypes {
		for _, horizon := range paradigm.ConsequenceHorizons {
			p.Consequences = append(p.Consequences, paradigm.Item{
				Text: kind + " outcome", Type: kind, Horizon: horizon,
				EvidenceIDs: []string{"f5"},
			})
		}
	}
	for i := 0; i < 5; i++ {
		p.Propositions = append(p.Propositions, paradigm.Item{
			Text:        fmt.Sprintf("proposition %d", i+1),
			EvidenceIDs: []string{fmt.Sprintf("f%d", i+1)},
		})
	}
	return p
}

func validInput(p *paradigm.Paradigm) Input {
	return Input{
		Paradigm: p,
		FragmentInterview: map[string]string{
			"f1": "i1", "f2": "i2", "f3": "i3", "f4": "i1", "f5": "i2",
		},
		KnownCategories:     []string{"precarity", "community", "trust", "mutual aid", "belonging"},
		AvailableInterviews: 5,
		Mode:                ModeStrict,
	}
}

func errorCodes(result *Result) []string {
	var out []string
	for _, issue := range result.Errors {
		out = append(out, issue.Code)
	}
	return out
}

func warningCodes(result *Result) []string {
	var out []string
	for _, issue := range result.Warnings {
		out = append(out, issue.Code)
	}
	return out
}

func TestValidateCleanParadigm(t *testing.T) {
	result := Validate(validInput(validParadigm()), judgeConfig())

	assert.True(t, result.OK)
	assert.Empty(t, result.Errors)
	assert.Equal(t, ModeStrict, result.Mode)
	assert.Equal(t, 3, result.DistinctInterviews)
}

func TestValidateUnknownConstructs(t *testing.T) {
	p := validParadigm()
	p.Conditions = []paradigm.Item{{Text: "something alien", EvidenceIDs: []string{"f1"}}}
	p.Actions = []paradigm.Item{{Text: "another alien", EvidenceIDs: []string{"f4"}}}
	p.Context = []paradigm.Item{{Text: "third alien", EvidenceIDs: []string{"f2"}}}
	p.InterveningConditions = nil

	result := Validate(validInput(p), judgeConfig())
	assert.Contains(t, errorCodes(result), CodeUnknownConstructs)
}

func TestValidateDomainSanity(t *testing.T) {
	p := validParadigm()
	p.Propositions[0].Text = "participants practice axial coding daily"

	result := Validate(validInput(p), judgeConfig())
	assert.Contains(t, errorCodes(result), CodeDomainSanity)
}

func TestValidatePropositionCount(t *testing.T) {
	p := validParadigm()
	p.Propositions = p.Propositions[:3]

	result := Validate(validInput(p), judgeConfig())
	assert.Contains(t, errorCodes(result), CodePropositionsInvalid)

	// Exactly five evidenced propositions are enough.
	result = Validate(validInput(validParadigm()), judgeConfig())
	assert.NotContains(t, errorCodes(result), CodePropositionsInvalid)
}

func TestValidateMissingEvidenceIDs(t *testing.T) {
	p := validParadigm()
	p.Conditions[0].EvidenceIDs = nil
	p.Consequences[0].EvidenceIDs = nil
	p.Context[0].EvidenceIDs = nil

	result := Validate(validInput(p), judgeConfig())
	codes := errorCodes(result)
	assert.Contains(t, codes, CodeConditionsActionsInvalid)
	assert.Contains(t, codes, CodeConsequencesInvalid)
	assert.Contains(t, codes, CodeContextIntervening)
}

func TestValidateBalanceStrict(t *testing.T) {
	p := validParadigm()
	p.Consequences = []paradigm.Item{
		{Text: "social only", Type: "social", Horizon: "corto_plazo", EvidenceIDs: []string{"f5"}},
	}
	in := validInput(p)

	cfg := judgeConfig()
	cfg.BalanceMinEvidence = 1
	result := Validate(in, cfg)
	assert.Contains(t, errorCodes(result), CodeBalanceConsequences)
}

func TestValidateBalanceDegradesOnLowEvidence(t *testing.T) {
	p := validParadigm()
	p.Consequences = []paradigm.Item{
		{Text: "social only", Type: "social", Horizon: "corto_plazo", EvidenceIDs: []string{"f5"}},
	}

	cfg := judgeConfig()
	cfg.BalanceMinEvidence = 100
	result := Validate(validInput(p), cfg)
	assert.NotContains(t, errorCodes(result), CodeBalanceConsequences)
	assert.Contains(t, warningCodes(result), CodeBalanceConsequences)
}

func TestValidateEvidenceMissing(t *testing.T) {
	in := validInput(validParadigm())
	in.MissingEvidence = []string{"ghost-1"}

	result := Validate(in, judgeConfig())
	assert.Contains(t, errorCodes(result), CodeEvidenceMissing)
}

func TestValidateCoverageAdaptiveSingleInterview(t *testing.T) {
	p := validParadigm()
	in := validInput(p)
	in.AvailableInterviews = 1
	in.FragmentInterview = map[string]string{
		"f1": "i1", "f2": "i1", "f3": "i1", "f4": "i1", "f5": "i1",
	}

	result := Validate(in, judgeConfig())
	assert.Equal(t, 1, result.EffectiveMinInterviews)
	assert.NotContains(t, errorCodes(result), CodeCoverageMinInterviews)
	// A single interview cannot trigger the concentration warning.
	assert.NotContains(t, warningCodes(result), CodeCoverageConcentration)
}

func TestValidateCoverageTooFewInterviews(t *testing.T) {
	cfg := judgeConfig()
	cfg.AdaptiveThresholds = config.BoolPtr(false)

	in := validInput(validParadigm())
	in.FragmentInterview = map[string]string{
		"f1": "i1", "f2": "i1", "f3": "i1", "f4": "i1", "f5": "i1",
	}

	result := Validate(in, cfg)
	assert.Contains(t, errorCodes(result), CodeCoverageMinInterviews)
}

func TestValidateCoverageConcentrationWarning(t *testing.T) {
	in := validInput(validParadigm())
	in.FragmentInterview = map[string]string{
		"f1": "i1", "f2": "i1", "f3": "i1", "f4": "i1", "f5": "i2",
	}

	result := Validate(in, judgeConfig())
	assert.Contains(t, warningCodes(result), CodeCoverageConcentration)
}

func TestEffectiveMinInterviewsNeverExceedsAvailable(t *testing.T) {
	cfg := judgeConfig()
	for available := 0; available <= 10; available++ {
		effective := EffectiveMinInterviews(cfg, available)
		assert.LessOrEqual(t, effective, available)
		assert.LessOrEqual(t, effective, cfg.MinInterviews)
	}
	assert.Equal(t, 3, EffectiveMinInterviews(cfg, 10))
	assert.Equal(t, 2, EffectiveMinInterviews(cfg, 3))
}
