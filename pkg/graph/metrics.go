package graph

import (
	"context"
	"log/slog"
)

// CategoryMetrics carries per-category centrality measures. PageRank and
// GDSDegree stay zero when the graph-algorithm extension is not installed.
type CategoryMetrics struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CodeDegree     int     `json:"code_degree"`
	FragmentDegree int     `json:"fragment_degree"`
	PageRank       float64 `json:"pagerank,omitempty"`
	GDSDegree      float64 `json:"gds_degree,omitempty"`
}

// CoOccurrence is one undirected category co-occurrence edge.
type CoOccurrence struct {
	CategoryA string  `json:"category_a"`
	CategoryB string  `json:"category_b"`
	Count     int     `json:"count"`
	Weight    float64 `json:"weight"`
}

// NetworkMetrics is the graph-derived network summary the theory engine
// feeds into the reasoning chain.
type NetworkMetrics struct {
	CategoryCount int                `json:"category_count"`
	CodeCount     int                `json:"code_count"`
	FragmentCount int                `json:"fragment_count"`
	Categories    []CategoryMetrics  `json:"categories"`
	CoOccurrences []CoOccurrence     `json:"co_occurrences"`
	GDSAvailable  bool               `json:"gds_available"`
}

// MaterializeCoOccurrence derives Category-CO_OCCURS_WITH-Category edges
// from fragment overlap: two categories co-occur once per fragment coded
// with codes of both.
func (g *Graph) MaterializeCoOccurrence(ctx context.Context, projectID string) error {
	_, err := g.write(ctx, `
		MATCH (p:Project {id: $project_id})-[:HAS_CATEGORY]->(a:Category),
		      (p)-[:HAS_CATEGORY]->(b:Category)
		WHERE a.id < b.id
		MATCH (a)-[:CONTAINS]->(:Code)-[:CODED_AS]->(f:Fragment)<-[:CODED_AS]-(:Code)<-[:CONTAINS]-(b)
		WITH a, b, count(DISTINCT f) AS shared
		WHERE shared > 0
		MERGE (a)-[e:CO_OCCURS_WITH]-(b)
		SET e.count = shared, e.weight = toFloat(shared)`,
		map[string]any{"project_id": projectID})
	return err
}

// NetworkMetrics computes counts, per-category degrees and the co-occurrence
// list. When the algorithmic extension is present it also computes PageRank
// and weighted degree; otherwise metrics degrade to Cypher-only.
func (g *Graph) NetworkMetrics(ctx context.Context, projectID string) (*NetworkMetrics, error) {
	out := &NetworkMetrics{}

	records, err := g.read(ctx, `
		MATCH (p:Project {id: $project_id})
		OPTIONAL MATCH (p)-[:HAS_CATEGORY]->(cat:Category)
		OPTIONAL MATCH (p)-[:HAS_CODE]->(code:Code)
		OPTIONAL MATCH (p)-[:HAS_INTERVIEW]->(:Interview)-[:HAS_FRAGMENT]->(f:Fragment)
		RETURN count(DISTINCT cat) AS categories,
		       count(DISTINCT code) AS codes,
		       count(DISTINCT f) AS fragments`,
		map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		out.CategoryCount = intValue(records[0].Values[0])
		out.CodeCount = intValue(records[0].Values[1])
		out.FragmentCount = intValue(records[0].Values[2])
	}

	records, err = g.read(ctx, `
		MATCH (p:Project {id: $project_id})-[:HAS_CATEGORY]->(cat:Category)
		OPTIONAL MATCH (cat)-[:CONTAINS]->(code:Code)
		OPTIONAL MATCH (cat)-[:CONTAINS]->(:Code)-[:CODED_AS]->(f:Fragment)
		RETURN cat.id AS id, cat.name AS name,
		       count(DISTINCT code) AS code_degree,
		       count(DISTINCT f) AS fragment_degree
		ORDER BY code_degree DESC, fragment_degree DESC`,
		map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		out.Categories = append(out.Categories, CategoryMetrics{
			ID:             stringValue(record.Values[0]),
			Name:           stringValue(record.Values[1]),
			CodeDegree:     intValue(record.Values[2]),
			FragmentDegree: intValue(record.Values[3]),
		})
	}

	records, err = g.read(ctx, `
		MATCH (p:Project {id: $project_id})-[:HAS_CATEGORY]->(a:Category)-[e:CO_OCCURS_WITH]-(b:Category)
		WHERE a.id < b.id
		RETURN a.name, b.name, e.count, e.weight
		ORDER BY e.count DESC`,
		map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		out.CoOccurrences = append(out.CoOccurrences, CoOccurrence{
			CategoryA: stringValue(record.Values[0]),
			CategoryB: stringValue(record.Values[1]),
			Count:     intValue(record.Values[2]),
			Weight:    floatValue(record.Values[3]),
		})
	}

	g.applyGDSMetrics(ctx, projectID, out)
	return out, nil
}

// applyGDSMetrics runs PageRank and weighted degree through the algorithmic
// extension, then reorders categories by (pagerank, gds_degree, code_degree,
// fragment_degree). Absence of the extension is not an error.
func (g *Graph) applyGDSMetrics(ctx context.Context, projectID string, metrics *NetworkMetrics) {
	records, err := g.read(ctx, `
		CALL gds.graph.project.cypher(
			'axial_' + $project_id,
			'MATCH (p:Project {id: "' + $project_id + '"})-[:HAS_CATEGORY]->(c:Category) RETURN id(c) AS id',
			'MATCH (a:Category)-[e:CO_OCCURS_WITH]-(b:Category) RETURN id(a) AS source, id(b) AS target, e.weight AS weight'
		)
		YIELD graphName
		CALL gds.pageRank.stream(graphName)
		YIELD nodeId, score
		WITH graphName, gds.util.asNode(nodeId) AS node, score
		CALL gds.degree.stream(graphName, {relationshipWeightProperty: 'weight'})
		YIELD nodeId AS dNodeId, score AS degree
		WHERE id(node) = dNodeId
		WITH graphName, node, score, degree
		CALL gds.graph.drop(graphName, false) YIELD graphName AS dropped
		RETURN node.id AS id, score, degree`,
		map[string]any{"project_id": projectID})
	if err != nil {
		if isMissingProcedure(err) {
			slog.Debug("graph algorithm extension unavailable, using cypher-only metrics")
		} else {
			slog.Warn("gds metrics failed, using cypher-only metrics", "error", err)
		}
		return
	}

	byID := make(map[string]*CategoryMetrics, len(metrics.Categories))
	for i := range metrics.Categories {
		byID[metrics.Categories[i].ID] = &metrics.Categories[i]
	}
	for _, record := range records {
		if cat, ok := byID[stringValue(record.Values[0])]; ok {
			cat.PageRank = floatValue(record.Values[1])
			cat.GDSDegree = floatValue(record.Values[2])
		}
	}
	metrics.GDSAvailable = true

	sortCategories(metrics.Categories)
}

func sortCategories(cats []CategoryMetrics) {
	// Reorder by (pagerank, gds_degree, code_degree, fragment_degree), all
	// descending. Insertion sort: category counts are small.
	for i := 1; i < len(cats); i++ {
		for j := i; j > 0 && lessCentral(cats[j-1], cats[j]); j-- {
			cats[j-1], cats[j] = cats[j], cats[j-1]
		}
	}
}

func lessCentral(a, b CategoryMetrics) bool {
	if a.PageRank != b.PageRank {
		return a.PageRank < b.PageRank
	}
	if a.GDSDegree != b.GDSDegree {
		return a.GDSDegree < b.GDSDegree
	}
	if a.CodeDegree != b.CodeDegree {
		return a.CodeDegree < b.CodeDegree
	}
	return a.FragmentDegree < b.FragmentDegree
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func floatValue(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
