package theory

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/paradigm"
)

// Claim is one evidence-bearing paradigm item bound for the graph store. The
// id is a UUIDv5 of (theory_id, section, order, text), so re-projecting an
// unchanged theory touches the same nodes.
type Claim struct {
	ID          uuid.UUID
	Section     string
	Order       int
	Text        string
	EvidenceIDs []string
	Contradicts []string
}

// BuildClaims derives the claim set from a paradigm.
func BuildClaims(theoryID uuid.UUID, p *paradigm.Paradigm) []Claim {
	var out []Claim
	for _, section := range p.Sections() {
		for order, item := range section.Items {
			if item.Text == "" {
				continue
			}
			name := fmt.Sprintf("%s:%d:%s", section.Name, order, item.Text)
			out = append(out, Claim{
				ID:          uuid.NewSHA1(theoryID, []byte(name)),
				Section:     section.Name,
				Order:       order,
				Text:        item.Text,
				EvidenceIDs: item.EvidenceIDs,
				Contradicts: item.ContradictingIDs,
			})
		}
	}
	return out
}

// claimRows converts claims to graph rows. ABOUT edges point at the matching
// category when the claim text names one, otherwise at the central category.
func claimRows(theoryID uuid.UUID, claims []Claim, categoryIDByName map[string]string, centralCategoryID string) ([]graph.ClaimRow, []graph.ClaimEdgeRow) {
	rows := make([]graph.ClaimRow, 0, len(claims))
	var edges []graph.ClaimEdgeRow

	for _, claim := range claims {
		rows = append(rows, graph.ClaimRow{
			ID:       claim.ID.String(),
			TheoryID: theoryID.String(),
			Section:  claim.Section,
			Order:    claim.Order,
			Text:     claim.Text,
		})

		categoryID := categoryIDByName[normalizeName(claim.Text)]
		if categoryID == "" {
			categoryID = centralCategoryID
		}
		if categoryID != "" {
			edges = append(edges, graph.ClaimEdgeRow{
				ClaimID:  claim.ID.String(),
				TargetID: categoryID,
				Kind:     graph.ClaimEdgeAbout,
			})
		}

		for rank, fragmentID := range claim.EvidenceIDs {
			edges = append(edges, graph.ClaimEdgeRow{
				ClaimID:  claim.ID.String(),
				TargetID: fragmentID,
				Kind:     graph.ClaimEdgeSupportedBy,
				Rank:     rank + 1,
			})
		}
		for rank, fragmentID := range claim.Contradicts {
			edges = append(edges, graph.ClaimEdgeRow{
				ClaimID:  claim.ID.String(),
				TargetID: fragmentID,
				Kind:     graph.ClaimEdgeContradicted,
				Rank:     rank + 1,
			})
		}
	}
	return rows, edges
}
