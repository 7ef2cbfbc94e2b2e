package graph

import "context"

// ClaimRow is one theory claim node in a batch sync.
type ClaimRow struct {
	ID       string
	TheoryID string
	Section  string
	Order    int
	Text     string
}

// ClaimEdgeRow links a claim to a category (ABOUT) or to a fragment
// (SUPPORTED_BY / CONTRADICTED_BY).
type ClaimEdgeRow struct {
	ClaimID  string
	TargetID string
	Kind     string
	Rank     int
	Score    float64
}

const (
	ClaimEdgeAbout        = "ABOUT"
	ClaimEdgeSupportedBy  = "SUPPORTED_BY"
	ClaimEdgeContradicted = "CONTRADICTED_BY"
)

// SyncClaims projects a theory version's claims and their evidence edges.
// Claim ids are deterministic, so re-running a projection is idempotent.
func (g *Graph) SyncClaims(ctx context.Context, projectID, theoryID string, claims []ClaimRow, edges []ClaimEdgeRow) error {
	if len(claims) > 0 {
		rows := make([]map[string]any, len(claims))
		for i, c := range claims {
			rows[i] = map[string]any{
				"id":        c.ID,
				"theory_id": c.TheoryID,
				"section":   c.Section,
				"order":     c.Order,
				"text":      c.Text,
			}
		}
		_, err := g.write(ctx, `
			MERGE (p:Project {id: $project_id})
			MERGE (t:Theory {id: $theory_id})
			MERGE (p)-[:HAS_THEORY]->(t)
			WITH t
			UNWIND $rows AS row
			MERGE (c:Claim {id: row.id})
			SET c.section = row.section,
			    c.order = row.order,
			    c.text = row.text
			MERGE (t)-[:HAS_CLAIM]->(c)`,
			map[string]any{"rows": rows, "project_id": projectID, "theory_id": theoryID})
		if err != nil {
			return err
		}
	}

	byKind := map[string][]map[string]any{}
	for _, e := range edges {
		byKind[e.Kind] = append(byKind[e.Kind], map[string]any{
			"claim_id":  e.ClaimID,
			"target_id": e.TargetID,
			"rank":      e.Rank,
			"score":     e.Score,
		})
	}

	if rows := byKind[ClaimEdgeAbout]; len(rows) > 0 {
		_, err := g.write(ctx, `
			UNWIND $rows AS row
			MATCH (c:Claim {id: row.claim_id})
			MATCH (cat:Category {id: row.target_id})
			MERGE (c)-[:ABOUT]->(cat)`,
			map[string]any{"rows": rows})
		if err != nil {
			return err
		}
	}
	if rows := byKind[ClaimEdgeSupportedBy]; len(rows) > 0 {
		if err := g.writeEvidenceEdges(ctx, "SUPPORTED_BY", rows); err != nil {
			return err
		}
	}
	if rows := byKind[ClaimEdgeContradicted]; len(rows) > 0 {
		if err := g.writeEvidenceEdges(ctx, "CONTRADICTED_BY", rows); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) writeEvidenceEdges(ctx context.Context, relType string, rows []map[string]any) error {
	// Relationship types cannot be parameterised; relType is one of the two
	// constants above, never caller input.
	_, err := g.write(ctx, `
		UNWIND $rows AS row
		MATCH (c:Claim {id: row.claim_id})
		MATCH (f:Fragment {id: row.target_id})
		MERGE (c)-[e:`+relType+`]->(f)
		SET e.rank = row.rank, e.score = row.score`,
		map[string]any{"rows": rows})
	return err
}
