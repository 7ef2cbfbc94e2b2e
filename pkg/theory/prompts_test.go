package theory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axialab/axial/pkg/llm"
)

func TestTemplateForFallsBackToGeneric(t *testing.T) {
	assert.Equal(t, domainTemplates["generic"], templateFor("no-such-domain"))
	assert.Equal(t, domainTemplates["ngo"], templateFor("ngo"))
}

func TestBuildPromptInjectsDomainVocabulary(t *testing.T) {
	system, user := BuildPrompt(llm.TaskBuildParadigm, "education", `{"payload":true}`)

	assert.Contains(t, system, "students, teachers")
	assert.Contains(t, system, "corto_plazo|largo_plazo")
	assert.Contains(t, system, "at least 5 propositions")

	// The lexicon precedes the payload and is rendered deterministically.
	assert.True(t, strings.HasPrefix(user, "Terminology: "))
	assert.Contains(t, user, `"organisation" means "school" here`)
	assert.True(t, strings.HasSuffix(user, `{"payload":true}`))

	again, _ := BuildPrompt(llm.TaskBuildParadigm, "education", `{"payload":true}`)
	assert.Equal(t, system, again)
}

func TestBuildPromptStageContracts(t *testing.T) {
	system, user := BuildPrompt(llm.TaskCentralCategory, "generic", "data")
	assert.Contains(t, system, "selected_central_category")
	assert.Equal(t, "data", user)

	system, _ = BuildPrompt(llm.TaskSaturation, "generic", "data")
	assert.Contains(t, system, "readiness_score")

	system, _ = BuildPrompt(llm.TaskRepair, "generic", "data")
	assert.Contains(t, system, "only the section named")
}
