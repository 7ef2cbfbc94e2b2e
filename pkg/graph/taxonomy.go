package graph

import "context"

// CategoryRow is one category node in a taxonomy sync.
type CategoryRow struct {
	ID         string
	Name       string
	Definition string
	IsCentral  bool
}

// ContainsRow links a category to one of its codes.
type ContainsRow struct {
	CategoryID string
	CodeID     string
}

// SyncTaxonomy projects the project's categories and the category→code
// CONTAINS edges.
func (g *Graph) SyncTaxonomy(ctx context.Context, projectID string, categories []CategoryRow, contains []ContainsRow) error {
	if len(categories) > 0 {
		rows := make([]map[string]any, len(categories))
		for i, c := range categories {
			rows[i] = map[string]any{
				"id":         c.ID,
				"name":       c.Name,
				"definition": c.Definition,
				"is_central": c.IsCentral,
			}
		}
		_, err := g.write(ctx, `
			UNWIND $rows AS row
			MATCH (p:Project {id: $project_id})
			MERGE (c:Category {id: row.id})
			SET c.name = row.name,
			    c.definition = row.definition,
			    c.is_central = row.is_central
			MERGE (p)-[:HAS_CATEGORY]->(c)`,
			map[string]any{"rows": rows, "project_id": projectID})
		if err != nil {
			return err
		}
	}

	if len(contains) > 0 {
		rows := make([]map[string]any, len(contains))
		for i, link := range contains {
			rows[i] = map[string]any{"category_id": link.CategoryID, "code_id": link.CodeID}
		}
		_, err := g.write(ctx, `
			UNWIND $rows AS row
			MATCH (cat:Category {id: row.category_id})
			MATCH (code:Code {id: row.code_id})
			MERGE (cat)-[:CONTAINS]->(code)`,
			map[string]any{"rows": rows})
		if err != nil {
			return err
		}
	}

	return nil
}
