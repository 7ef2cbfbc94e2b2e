package graph

import (
	"context"
	"time"
)

// FragmentRow is one fragment node in a batch sync.
type FragmentRow struct {
	ID          string
	InterviewID string
	Text        string
	StartOffset int
	EndOffset   int
}

// CodeRow is one code node in a batch sync.
type CodeRow struct {
	ID    string
	Label string
}

// CodedEdgeRow is one CODED_AS edge with its audit attributes. The legacy
// APPLIES_TO edge is written alongside; downstream readers still consume it.
type CodedEdgeRow struct {
	CodeID     string
	FragmentID string
	Confidence float64
	Source     string
	RunID      string
	CharStart  *int
	CharEnd    *int
}

// SyncCodedInterview projects one interview's coding state: the interview
// node, its fragments, the codes, and the coded edges. Single round-trip per
// row kind, MERGE everywhere.
func (g *Graph) SyncCodedInterview(ctx context.Context, projectID, interviewID string, fragments []FragmentRow, codes []CodeRow, edges []CodedEdgeRow) error {
	_, err := g.write(ctx, `
		MERGE (p:Project {id: $project_id})
		MERGE (i:Interview {id: $interview_id})
		MERGE (p)-[:HAS_INTERVIEW]->(i)`,
		map[string]any{"project_id": projectID, "interview_id": interviewID})
	if err != nil {
		return err
	}

	if len(fragments) > 0 {
		rows := make([]map[string]any, len(fragments))
		for i, f := range fragments {
			rows[i] = map[string]any{
				"id":           f.ID,
				"interview_id": f.InterviewID,
				"text":         f.Text,
				"start_offset": f.StartOffset,
				"end_offset":   f.EndOffset,
			}
		}
		_, err = g.write(ctx, `
			UNWIND $rows AS row
			MATCH (i:Interview {id: row.interview_id})
			MERGE (f:Fragment {id: row.id})
			SET f.text = row.text,
			    f.start_offset = row.start_offset,
			    f.end_offset = row.end_offset
			MERGE (i)-[:HAS_FRAGMENT]->(f)`,
			map[string]any{"rows": rows})
		if err != nil {
			return err
		}
	}

	if len(codes) > 0 {
		rows := make([]map[string]any, len(codes))
		for i, c := range codes {
			rows[i] = map[string]any{"id": c.ID, "label": c.Label}
		}
		_, err = g.write(ctx, `
			UNWIND $rows AS row
			MATCH (p:Project {id: $project_id})
			MERGE (c:Code {id: row.id})
			SET c.label = row.label
			MERGE (p)-[:HAS_CODE]->(c)`,
			map[string]any{"rows": rows, "project_id": projectID})
		if err != nil {
			return err
		}
	}

	if len(edges) > 0 {
		now := time.Now().UTC().Format(time.RFC3339)
		rows := make([]map[string]any, len(edges))
		for i, e := range edges {
			rows[i] = map[string]any{
				"code_id":     e.CodeID,
				"fragment_id": e.FragmentID,
				"confidence":  e.Confidence,
				"source":      e.Source,
				"run_id":      e.RunID,
				"ts":          now,
				"char_start":  e.CharStart,
				"char_end":    e.CharEnd,
			}
		}
		_, err = g.write(ctx, `
			UNWIND $rows AS row
			MATCH (c:Code {id: row.code_id})
			MATCH (f:Fragment {id: row.fragment_id})
			MERGE (c)-[edge:CODED_AS]->(f)
			SET edge.confidence = row.confidence,
			    edge.source = row.source,
			    edge.run_id = row.run_id,
			    edge.ts = row.ts,
			    edge.char_start = row.char_start,
			    edge.char_end = row.char_end
			MERGE (c)-[:APPLIES_TO]->(f)`,
			map[string]any{"rows": rows})
		if err != nil {
			return err
		}
	}

	return nil
}
