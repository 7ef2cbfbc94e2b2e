package theory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/paradigm"
)

func TestBuildClaimsDeterministic(t *testing.T) {
	theoryID := uuid.New()
	p := &paradigm.Paradigm{
		Conditions:   []paradigm.Item{{Text: "precarity", EvidenceIDs: []string{"f1"}}},
		Propositions: []paradigm.Item{{Text: "p1", EvidenceIDs: []string{"f1", "f2"}}},
	}

	first := BuildClaims(theoryID, p)
	second := BuildClaims(theoryID, p)
	require.Equal(t, first, second)
	require.Len(t, first, 2)

	// A different theory produces different claim ids for the same content.
	other := BuildClaims(uuid.New(), p)
	assert.NotEqual(t, first[0].ID, other[0].ID)
}

func TestBuildClaimsSkipsEmptyItems(t *testing.T) {
	p := &paradigm.Paradigm{
		Conditions: []paradigm.Item{{Text: ""}, {Text: "real"}},
	}
	claims := BuildClaims(uuid.New(), p)
	require.Len(t, claims, 1)
	assert.Equal(t, "real", claims[0].Text)
	assert.Equal(t, "conditions", claims[0].Section)
	assert.Equal(t, 1, claims[0].Order)
}

func TestClaimRowsEdges(t *testing.T) {
	theoryID := uuid.New()
	claims := []Claim{
		{
			ID: uuid.New(), Section: "conditions", Order: 0, Text: "precarity",
			EvidenceIDs: []string{"f1", "f2"},
			Contradicts: []string{"f3"},
		},
		{
			ID: uuid.New(), Section: "propositions", Order: 0, Text: "something novel",
			EvidenceIDs: []string{"f1"},
		},
	}

	rows, edges := claimRows(theoryID, claims, map[string]string{"precarity": "cat-1"}, "cat-central")
	require.Len(t, rows, 2)
	assert.Equal(t, theoryID.String(), rows[0].TheoryID)

	kinds := map[string][]graph.ClaimEdgeRow{}
	for _, edge := range edges {
		kinds[edge.Kind] = append(kinds[edge.Kind], edge)
	}

	// First claim maps ABOUT to its named category; the second falls back to
	// the central category.
	require.Len(t, kinds[graph.ClaimEdgeAbout], 2)
	assert.Equal(t, "cat-1", kinds[graph.ClaimEdgeAbout][0].TargetID)
	assert.Equal(t, "cat-central", kinds[graph.ClaimEdgeAbout][1].TargetID)

	require.Len(t, kinds[graph.ClaimEdgeSupportedBy], 3)
	assert.Equal(t, 1, kinds[graph.ClaimEdgeSupportedBy][0].Rank)
	assert.Equal(t, 2, kinds[graph.ClaimEdgeSupportedBy][1].Rank)

	require.Len(t, kinds[graph.ClaimEdgeContradicted], 1)
	assert.Equal(t, "f3", kinds[graph.ClaimEdgeContradicted][0].TargetID)
}
