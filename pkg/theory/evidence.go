package theory

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/vector"
)

// evidenceIndex maps fragment ids to their retrieved text, for repair prompts
// and provenance.
type evidenceIndex map[string]string

// gatherEvidence retrieves supporting fragments for the top central
// categories: each category's "<name>. <definition>" is embedded, then
// queried against the project's fragment collection with tenancy scoping.
// Retrieval failures degrade to no evidence for that category.
func (e *Engine) gatherEvidence(ctx context.Context, project *store.Project, categories []categoryView) evidenceIndex {
	topN := e.cfg.Pipeline.TopCentralCategories
	if topN > len(categories) {
		topN = len(categories)
	}
	if topN == 0 {
		return evidenceIndex{}
	}

	queries := make([]string, topN)
	for i := 0; i < topN; i++ {
		queries[i] = categories[i].Name
		if categories[i].Definition != "" {
			queries[i] += ". " + categories[i].Definition
		}
	}

	embeddings, err := e.gateway.Embed(ctx, queries)
	if err != nil {
		slog.Warn("evidence embedding failed, continuing without semantic evidence", "error", err)
		return evidenceIndex{}
	}
	if len(embeddings) < topN {
		topN = len(embeddings)
	}

	collection := vector.FragmentCollection(project.ID.String())
	index := evidenceIndex{}
	var mu sync.Mutex
	var legacyFallback sync.Once

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Pipeline.RetrievalConcurrency)

	for i := 0; i < topN; i++ {
		group.Go(func() error {
			filter := map[string]string{
				"project_id":  project.ID.String(),
				"owner_id":    project.OwnerID,
				"source_type": "fragment",
			}
			hits, err := e.vectors.Search(groupCtx, collection, embeddings[i], e.cfg.Pipeline.EvidencePerCategory, filter)
			if err != nil {
				slog.Warn("evidence retrieval failed for category",
					"category", categories[i].Name, "error", err)
				return nil
			}

			// Collections written before payloads carried source_type
			// return nothing under the scoped filter; retry once without it.
			if len(hits) == 0 {
				legacyFallback.Do(func() {
					delete(filter, "source_type")
					hits, err = e.vectors.Search(groupCtx, collection, embeddings[i], e.cfg.Pipeline.EvidencePerCategory, filter)
					if err != nil {
						slog.Warn("legacy evidence retrieval failed", "error", err)
					}
				})
			}

			frags := make([]evidenceFragment, 0, len(hits))
			mu.Lock()
			for _, hit := range hits {
				text, _ := hit.Payload["text"].(string)
				frags = append(frags, evidenceFragment{ID: hit.ID, Text: text, Score: hit.Score})
				index[hit.ID] = text
			}
			categories[i].Fragments = frags
			mu.Unlock()
			return nil
		})
	}
	group.Wait()
	return index
}
