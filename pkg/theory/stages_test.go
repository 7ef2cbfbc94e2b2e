package theory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axialab/axial/pkg/graph"
)

func TestDegradeLadderOrder(t *testing.T) {
	state := newPayloadState(make([]categoryView, 40), nil, 3)

	// Fragments per category shrink first.
	assert.Equal(t, "frags_per_cat=2", state.degrade())
	assert.Equal(t, "frags_per_cat=1", state.degrade())

	// Then fragment length.
	step := state.degrade()
	assert.True(t, strings.HasPrefix(step, "fragment_chars="), step)
	for strings.HasPrefix(step, "fragment_chars=") {
		step = state.degrade()
	}

	// Then category count.
	assert.True(t, strings.HasPrefix(step, "categories="), step)
	for strings.HasPrefix(step, "categories=") {
		step = state.degrade()
	}

	// Then network size, then evidence stripping.
	assert.True(t, strings.HasPrefix(step, "network_top="), step)
	for strings.HasPrefix(step, "network_top=") {
		step = state.degrade()
	}
	assert.Equal(t, "strip_stage2_evidence", step)
	assert.Equal(t, "strip_stage3_evidence", state.degrade())
	assert.Equal(t, "", state.degrade())
}

func TestDegradeRespectsFloors(t *testing.T) {
	state := newPayloadState(make([]categoryView, 40), nil, 3)
	for state.degrade() != "" {
	}
	assert.Equal(t, minFragsPerCat, state.fragsPerCat)
	assert.Equal(t, minFragmentChars, state.fragmentChars)
	assert.Equal(t, minCategories, state.maxCategories)
	assert.Equal(t, minNetworkTop, state.networkTop)
}

func TestRenderCategoriesAppliesKnobs(t *testing.T) {
	long := strings.Repeat("x", 5000)
	categories := []categoryView{
		{Name: "a", Fragments: []evidenceFragment{
			{ID: "f1", Text: long}, {ID: "f2", Text: "short"}, {ID: "f3", Text: "short"},
		}},
		{Name: "b"},
		{Name: "c"},
	}
	state := newPayloadState(categories, nil, 2)
	state.fragmentChars = 100
	state.maxCategories = 2

	rendered := state.renderCategories(false)
	require.Len(t, rendered, 2)
	require.Len(t, rendered[0].Fragments, 2)
	assert.Len(t, rendered[0].Fragments[0].Text, 100)

	// Slim mode drops evidence entirely.
	slim := state.renderCategories(true)
	assert.Nil(t, slim[0].Fragments)

	// A long fragment is cut before categories are dropped: the original
	// category list is untouched by rendering.
	assert.Len(t, categories[0].Fragments[0].Text, 5000)
}

func TestRenderNetworkTruncatesCoOccurrences(t *testing.T) {
	network := &graph.NetworkMetrics{
		CategoryCount: 3,
		CoOccurrences: make([]graph.CoOccurrence, 50),
	}
	state := newPayloadState(nil, network, 3)
	state.networkTop = 10

	payload := state.renderNetwork()
	require.NotNil(t, payload)
	assert.Len(t, payload.CoOccurrences, 10)
	assert.Equal(t, 3, payload.CategoryCount)
}

func TestParadigmPayloadPutsCentralFirst(t *testing.T) {
	state := newPayloadState([]categoryView{
		{Name: "alpha"}, {Name: "beta"}, {Name: "gamma"},
	}, nil, 3)

	payload := state.paradigmPayload("beta")
	betaIdx := strings.Index(payload, `"beta"`)
	alphaIdx := strings.Index(payload, `"alpha"`)
	require.Positive(t, betaIdx)
	require.Positive(t, alphaIdx)
	assert.Less(t, betaIdx, alphaIdx)
}
