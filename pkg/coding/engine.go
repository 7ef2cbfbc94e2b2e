// Package coding implements the two-phase interview coding engine: parallel
// LLM classification of fragments, then sequential relational mutation, then
// projection sync to the graph and vector stores.
package coding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/jsonx"
	"github.com/axialab/axial/pkg/llm"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/vector"
)

// Relational is the slice of the relational store the engine consumes.
type Relational interface {
	GetProject(ctx context.Context, projectID uuid.UUID, scope store.Scope) (*store.Project, error)
	GetInterview(ctx context.Context, interviewID uuid.UUID) (*store.Interview, error)
	ListFragments(ctx context.Context, interviewID uuid.UUID) ([]store.Fragment, error)
	LoadCodeCache(ctx context.Context, projectID uuid.UUID) (map[string]*store.Code, error)
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetOrCreateCode(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, label, definition, createdBy string) (*store.Code, error)
	BulkInsertLinks(ctx context.Context, tx pgx.Tx, links []store.CodeFragmentLink) error
	ListLinksForInterview(ctx context.Context, interviewID uuid.UUID) ([]store.CodeFragmentLink, error)
	MarkFragmentsEmbedded(ctx context.Context, fragmentIDs []uuid.UUID) error
}

// GraphSink receives the coded-interview projection.
type GraphSink interface {
	SyncCodedInterview(ctx context.Context, projectID, interviewID string, fragments []graph.FragmentRow, codes []graph.CodeRow, edges []graph.CodedEdgeRow) error
}

// VectorSink receives fragment embeddings.
type VectorSink interface {
	Upsert(ctx context.Context, collection string, points []vector.Point) error
}

// Engine codes one interview at a time.
type Engine struct {
	db      Relational
	graph   GraphSink
	vectors VectorSink
	gateway llm.Gateway
	cfg     *config.PipelineConfig
}

// New builds a coding engine.
func New(db Relational, graphSink GraphSink, vectorSink VectorSink, gateway llm.Gateway, cfg *config.PipelineConfig) *Engine {
	return &Engine{db: db, graph: graphSink, vectors: vectorSink, gateway: gateway, cfg: cfg}
}

// fragmentResult pairs a fragment with its classification outcome. A failed
// LLM call leaves Codes empty; classification failures never propagate.
type fragmentResult struct {
	fragment store.Fragment
	codes    []extractedCode
}

// AutoCodeInterview runs the full coding pass for one interview.
//
// Phase A classifies every fragment with bounded concurrency. Phase B applies
// the results sequentially inside one transaction. Phase C projects the coded
// state into the vector and graph stores; projection failures are logged and
// tolerated, the relational commit is what counts.
func (e *Engine) AutoCodeInterview(ctx context.Context, projectID, interviewID uuid.UUID, scope store.Scope, runID string) error {
	project, err := e.db.GetProject(ctx, projectID, scope)
	if err != nil {
		return err
	}

	fragments, err := e.db.ListFragments(ctx, interviewID)
	if err != nil {
		return err
	}
	if len(fragments) == 0 {
		slog.Info("interview has no fragments, nothing to code",
			"project_id", projectID, "interview_id", interviewID)
		return nil
	}

	cache, err := e.db.LoadCodeCache(ctx, projectID)
	if err != nil {
		return err
	}

	results := e.classifyFragments(ctx, fragments, cache)

	links, err := e.applyResults(ctx, projectID, cache, results, runID)
	if err != nil {
		return err
	}

	allLinks, lookup := e.reloadCodedState(ctx, interviewID, cache, links)
	e.syncProjections(ctx, project, interviewID, fragments, allLinks, lookup, runID)
	return nil
}

// reloadCodedState re-reads the interview's full link set before projecting,
// so links applied manually in earlier passes are carried too. A failed
// reload falls back to this run's links. The cache holds every project code
// after Phase B, including ones created this run.
func (e *Engine) reloadCodedState(ctx context.Context, interviewID uuid.UUID, cache map[string]*store.Code, links []store.CodeFragmentLink) ([]store.CodeFragmentLink, map[uuid.UUID]*store.Code) {
	lookup := make(map[uuid.UUID]*store.Code, len(cache))
	for _, code := range cache {
		lookup[code.ID] = code
	}

	allLinks, err := e.db.ListLinksForInterview(ctx, interviewID)
	if err != nil {
		slog.Warn("link reload failed, projecting this run's links only",
			"interview_id", interviewID, "error", err)
		return links, lookup
	}
	return allLinks, lookup
}

// classifyFragments is Phase A. The code cache snapshot is read-only here;
// all classifications finish before any mutation starts.
func (e *Engine) classifyFragments(ctx context.Context, fragments []store.Fragment, cache map[string]*store.Code) []fragmentResult {
	existing := make([]string, 0, len(cache))
	for _, c := range cache {
		existing = append(existing, c.Label)
	}
	system := classifySystemPrompt(existing)

	results := make([]fragmentResult, len(fragments))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.FragmentConcurrency)

	for i, fragment := range fragments {
		group.Go(func() error {
			codes, err := e.classifyOne(groupCtx, system, fragment)
			if err != nil {
				slog.Warn("fragment classification failed, continuing with no codes",
					"fragment_id", fragment.ID, "error", err)
				codes = nil
			}
			results[i] = fragmentResult{fragment: fragment, codes: codes}
			return nil
		})
	}
	group.Wait()
	return results
}

func (e *Engine) classifyOne(ctx context.Context, system string, fragment store.Fragment) ([]extractedCode, error) {
	result, err := e.gateway.Route(ctx, llm.TaskClassifyFragments, system, fragment.Text, 0)
	if err != nil {
		return nil, err
	}

	var response classifyResponse
	if err := jsonx.Decode(result.Text, &response); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}
	return response.ExtractedCodes, nil
}

// applyResults is Phase B: one transaction, sequential get-or-create against
// the cache, then a single conflict-ignoring bulk link insert.
func (e *Engine) applyResults(ctx context.Context, projectID uuid.UUID, cache map[string]*store.Code, results []fragmentResult, runID string) ([]store.CodeFragmentLink, error) {
	var links []store.CodeFragmentLink
	linkIndex := make(map[[2]uuid.UUID]int)
	codeByID := make(map[uuid.UUID]*store.Code)

	err := e.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, result := range results {
			for _, extracted := range result.codes {
				normalized := store.NormalizeLabel(extracted.Label)
				if normalized == "" {
					continue
				}

				code, ok := cache[normalized]
				if !ok {
					created, err := e.db.GetOrCreateCode(ctx, tx, projectID, extracted.Label, extracted.Definition, "ai")
					if err != nil {
						return err
					}
					cache[normalized] = created
					code = created
				}
				codeByID[code.ID] = code

				charStart, charEnd := findSpan(result.fragment.Text, extracted.EvidenceText)
				link := store.CodeFragmentLink{
					CodeID:     code.ID,
					FragmentID: result.fragment.ID,
					Confidence: clampConfidence(extracted.Confidence),
					Source:     store.SourceAI,
					CharStart:  charStart,
					CharEnd:    charEnd,
				}

				// Distinct labels can normalize to the same code; the bulk
				// statement must bind each (code, fragment) pair once. The
				// highest-confidence link wins.
				key := [2]uuid.UUID{link.CodeID, link.FragmentID}
				if at, ok := linkIndex[key]; ok {
					if link.Confidence > links[at].Confidence {
						links[at] = link
					}
					continue
				}
				linkIndex[key] = len(links)
				links = append(links, link)
			}
		}
		return e.db.BulkInsertLinks(ctx, tx, links)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("interview coded", "project_id", projectID,
		"links", len(links), "codes", len(codeByID), "run_id", runID)
	return links, nil
}

// syncProjections is Phase C. Both projections run under a per-step timeout;
// failure of either is logged and tolerated.
func (e *Engine) syncProjections(ctx context.Context, project *store.Project, interviewID uuid.UUID, fragments []store.Fragment, links []store.CodeFragmentLink, codeByID map[uuid.UUID]*store.Code, runID string) {
	stepTimeout := time.Duration(e.cfg.StepTimeout) * time.Second

	{
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		if err := e.syncVectors(stepCtx, project, interviewID, fragments, links, codeByID); err != nil {
			slog.Warn("vector sync failed, relational state kept",
				"interview_id", interviewID, "error", err)
		}
		cancel()
	}

	{
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		if err := e.syncGraph(stepCtx, project.ID, interviewID, fragments, links, codeByID, runID); err != nil {
			slog.Warn("graph sync failed, relational state kept",
				"interview_id", interviewID, "error", err)
		}
		cancel()
	}
}

// syncVectors embeds all fragments in one call and upserts the points.
// Fragments are marked embedding_synced only when their embedding actually
// came back: a short embedding batch truncates the sync, never pads it.
func (e *Engine) syncVectors(ctx context.Context, project *store.Project, interviewID uuid.UUID, fragments []store.Fragment, links []store.CodeFragmentLink, codeByID map[uuid.UUID]*store.Code) error {
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}

	embeddings, err := e.gateway.Embed(ctx, texts)
	if err != nil {
		return err
	}

	codesByFragment := make(map[uuid.UUID][]string)
	for _, link := range links {
		if code, ok := codeByID[link.CodeID]; ok {
			codesByFragment[link.FragmentID] = append(codesByFragment[link.FragmentID], code.Label)
		}
	}

	n := len(fragments)
	if len(embeddings) < n {
		slog.Warn("embedding batch shorter than fragment batch, truncating",
			"fragments", n, "embeddings", len(embeddings))
		n = len(embeddings)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	points := make([]vector.Point, 0, n)
	synced := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		f := fragments[i]
		codes := codesByFragment[f.ID]
		if codes == nil {
			codes = []string{}
		}
		points = append(points, vector.Point{
			ID:     f.ID.String(),
			Vector: embeddings[i],
			Payload: map[string]any{
				"text":         f.Text,
				"project_id":   project.ID.String(),
				"owner_id":     project.OwnerID,
				"interview_id": interviewID.String(),
				"fragment_id":  f.ID.String(),
				"source_type":  "fragment",
				"created_at":   now,
				"codes":        codes,
			},
		})
		synced = append(synced, f.ID)
	}

	if err := e.vectors.Upsert(ctx, vector.FragmentCollection(project.ID.String()), points); err != nil {
		return err
	}
	return e.db.MarkFragmentsEmbedded(ctx, synced)
}

func (e *Engine) syncGraph(ctx context.Context, projectID, interviewID uuid.UUID, fragments []store.Fragment, links []store.CodeFragmentLink, codeByID map[uuid.UUID]*store.Code, runID string) error {
	fragmentRows := make([]graph.FragmentRow, len(fragments))
	for i, f := range fragments {
		fragmentRows[i] = graph.FragmentRow{
			ID:          f.ID.String(),
			InterviewID: interviewID.String(),
			Text:        f.Text,
			StartOffset: f.StartOffset,
			EndOffset:   f.EndOffset,
		}
	}

	// Only codes actually linked to this interview travel to the graph.
	seen := make(map[uuid.UUID]struct{}, len(links))
	codeRows := make([]graph.CodeRow, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link.CodeID]; ok {
			continue
		}
		seen[link.CodeID] = struct{}{}
		if code, ok := codeByID[link.CodeID]; ok {
			codeRows = append(codeRows, graph.CodeRow{ID: code.ID.String(), Label: code.Label})
		}
	}

	edgeRows := make([]graph.CodedEdgeRow, len(links))
	for i, link := range links {
		edgeRows[i] = graph.CodedEdgeRow{
			CodeID:     link.CodeID.String(),
			FragmentID: link.FragmentID.String(),
			Confidence: link.Confidence,
			Source:     string(link.Source),
			RunID:      runID,
			CharStart:  link.CharStart,
			CharEnd:    link.CharEnd,
		}
	}

	return e.graph.SyncCodedInterview(ctx, projectID.String(), interviewID.String(), fragmentRows, codeRows, edgeRows)
}

// findSpan locates the evidence text within the fragment, exact match first,
// case-insensitive second. No match means no span.
func findSpan(fragmentText, evidence string) (*int, *int) {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return nil, nil
	}

	idx := strings.Index(fragmentText, evidence)
	if idx < 0 {
		idx = strings.Index(strings.ToLower(fragmentText), strings.ToLower(evidence))
	}
	if idx < 0 {
		return nil, nil
	}

	end := idx + len(evidence)
	return &idx, &end
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
