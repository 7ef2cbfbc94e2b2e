// Package theory implements the staged reasoning pipeline that turns a coded
// project into a validated grounded theory: graph-informed category ranking,
// semantic evidence assembly, budgeted LLM stages, deterministic judging with
// targeted repair, and claim projection.
package theory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/axialab/axial/pkg/budget"
	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/judge"
	"github.com/axialab/axial/pkg/jsonx"
	"github.com/axialab/axial/pkg/llm"
	"github.com/axialab/axial/pkg/paradigm"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/vector"
)

// Relational is the slice of the relational store the engine consumes.
type Relational interface {
	GetProject(ctx context.Context, projectID uuid.UUID, scope store.Scope) (*store.Project, error)
	ListCategories(ctx context.Context, projectID uuid.UUID) ([]store.Category, error)
	BootstrapCategories(ctx context.Context, projectID uuid.UUID) ([]store.Category, error)
	ListUncodedCompletedInterviews(ctx context.Context, projectID uuid.UUID) ([]store.Interview, error)
	CountInterviews(ctx context.Context, projectID uuid.UUID) (total, completed int, err error)
	CountCodes(ctx context.Context, projectID uuid.UUID) (int, error)
	ListCodes(ctx context.Context, projectID uuid.UUID) ([]store.Code, error)
	FragmentInterviewMap(ctx context.Context, projectID uuid.UUID, fragmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	SaveTheory(ctx context.Context, theory *store.Theory) error
	ListRecentJudgeOutcomes(ctx context.Context, projectID uuid.UUID, limit int) ([]store.JudgeOutcome, error)
	MarkCentralCategory(ctx context.Context, projectID, categoryID uuid.UUID) error
}

// GraphStore is the slice of the graph projection the engine consumes.
type GraphStore interface {
	SyncTaxonomy(ctx context.Context, projectID string, categories []graph.CategoryRow, contains []graph.ContainsRow) error
	MaterializeCoOccurrence(ctx context.Context, projectID string) error
	NetworkMetrics(ctx context.Context, projectID string) (*graph.NetworkMetrics, error)
	SyncClaims(ctx context.Context, projectID, theoryID string, claims []graph.ClaimRow, edges []graph.ClaimEdgeRow) error
}

// VectorStore is the slice of the vector projection the engine consumes.
type VectorStore interface {
	Search(ctx context.Context, collection string, queryVector []float32, topK int, filter map[string]string) ([]vector.Hit, error)
	Upsert(ctx context.Context, collection string, points []vector.Point) error
}

// Coder runs the coding engine during preflight for interviews that were
// never coded.
type Coder interface {
	AutoCodeInterview(ctx context.Context, projectID, interviewID uuid.UUID, scope store.Scope, runID string) error
}

// Engine drives the theory pipeline.
type Engine struct {
	db      Relational
	graph   GraphStore
	vectors VectorStore
	gateway llm.Gateway
	coder   Coder
	cfg     *config.Config
}

// New builds a theory engine.
func New(db Relational, graphStore GraphStore, vectorStore VectorStore, gateway llm.Gateway, coder Coder, cfg *config.Config) *Engine {
	return &Engine{db: db, graph: graphStore, vectors: vectorStore, gateway: gateway, coder: coder, cfg: cfg}
}

// Request carries per-run options from the API surface.
type Request struct {
	// TemplateKey overrides the project's domain template.
	TemplateKey string `json:"template_key,omitempty"`

	// TaskID ties the run to its task record, recorded in provenance.
	TaskID string `json:"task_id,omitempty"`
}

// Hooks are the orchestrator callbacks. Either may be nil.
type Hooks struct {
	// MarkStep reports pipeline progress.
	MarkStep func(step string, progress int)

	// RefreshLock extends the per-project lock.
	RefreshLock func()
}

func (h Hooks) mark(step string, progress int) {
	if h.MarkStep != nil {
		h.MarkStep(step, progress)
	}
	if h.RefreshLock != nil {
		h.RefreshLock()
	}
}

// InsufficientCategoriesError reports a project too thin to theorise over,
// with diagnostic counts.
type InsufficientCategoriesError struct {
	Interviews int
	Codes      int
	Categories int
}

func (e *InsufficientCategoriesError) Error() string {
	return fmt.Sprintf("INSUFFICIENT_CATEGORIES: project has %d completed interviews, %d codes, %d categories (at least 2 categories required)",
		e.Interviews, e.Codes, e.Categories)
}

// JudgeFailedError reports a strict-mode judge rejection after repair.
type JudgeFailedError struct {
	Result *judge.Result
}

func (e *JudgeFailedError) Error() string {
	codes := make([]string, len(e.Result.Errors))
	for i, issue := range e.Result.Errors {
		codes[i] = issue.Code
	}
	return fmt.Sprintf("JUDGE_FAILED: %v", codes)
}

// validationReport is the provenance trail persisted with every theory.
type validationReport struct {
	GapAnalysis           *saturationResult       `json:"gap_analysis,omitempty"`
	NetworkMetricsSummary *graph.NetworkMetrics   `json:"network_metrics_summary,omitempty"`
	BudgetDebug           map[string]budget.Debug `json:"budget_debug"`
	ParadigmValidation    paradigmValidation      `json:"paradigm_validation"`
	Judge                 *judge.Result           `json:"judge,omitempty"`
	PipelineRuntime       pipelineRuntime         `json:"pipeline_runtime"`
}

type paradigmValidation struct {
	Before            json.RawMessage `json:"before"`
	After             json.RawMessage `json:"after"`
	RepairsApplied    []string        `json:"repairs_applied"`
	EvidenceIndexUsed []string        `json:"evidence_index_used"`
}

type pipelineRuntime struct {
	TaskID        string   `json:"task_id,omitempty"`
	PromptVersion string   `json:"prompt_version"`
	TemplateKey   string   `json:"template_key"`
	Request       *Request `json:"request,omitempty"`
}

// GenerateTheory runs the full staged pipeline for one project.
func (e *Engine) GenerateTheory(ctx context.Context, projectID uuid.UUID, scope store.Scope, req Request, hooks Hooks) (*store.Theory, error) {
	hooks.mark("preflight", 5)
	project, categories, err := e.preflight(ctx, projectID, scope, req)
	if err != nil {
		return nil, err
	}

	templateKey := req.TemplateKey
	if templateKey == "" {
		templateKey = project.DomainTemplate
	}
	if _, ok := domainTemplates[templateKey]; !ok {
		templateKey = e.cfg.Pipeline.TemplateKey
	}

	hooks.mark("taxonomy_sync", 15)
	e.syncTaxonomy(ctx, project, categories)

	hooks.mark("network_metrics", 25)
	network := e.networkMetrics(ctx, project)
	views := categoryViews(categories, network)

	hooks.mark("evidence", 35)
	index := e.gatherEvidence(ctx, project, views)

	payloadNetwork := network
	if !*e.cfg.Pipeline.UseSubgraphEvidence {
		payloadNetwork = nil
	}
	state := newPayloadState(views, payloadNetwork, e.cfg.Pipeline.EvidencePerCategory)
	debugs := map[string]budget.Debug{}

	hooks.mark("central_category", 45)
	central, debug, err := e.stageCentralCategory(ctx, templateKey, state, views)
	debugs["central_category"] = debug
	if err != nil {
		return nil, err
	}
	e.markCentral(ctx, projectID, categories, central)

	hooks.mark("paradigm", 60)
	p, rawParadigm, debug, err := e.stageParadigm(ctx, templateKey, state, central)
	debugs["paradigm"] = debug
	if err != nil {
		return nil, err
	}

	hooks.mark("saturation", 75)
	gaps, debug := e.stageSaturation(ctx, templateKey, state, p)
	debugs["saturation"] = debug

	hooks.mark("repair", 80)
	knownNames := categoryNames(categories)
	repairs := e.runRepairs(ctx, templateKey, p, index, knownNames)

	verdict, err := e.runJudge(ctx, projectID, templateKey, p, index, knownNames, &repairs)
	if err != nil {
		var judgeErr *JudgeFailedError
		if errors.As(err, &judgeErr) {
			// A strict rejection is still persisted, as a draft, so the
			// rollout policy sees the failure in the judge history.
			hooks.mark("persist", 90)
			if _, saveErr := e.persist(ctx, projectID, p, rawParadigm, gaps, network, debugs, repairs, judgeErr.Result, index, templateKey, req, store.TheoryDraft); saveErr != nil {
				slog.Warn("failed to persist rejected draft", "error", saveErr)
			}
		}
		return nil, err
	}

	hooks.mark("persist", 90)
	theory, err := e.persist(ctx, projectID, p, rawParadigm, gaps, network, debugs, repairs, verdict, index, templateKey, req, store.TheoryCompleted)
	if err != nil {
		return nil, err
	}

	hooks.mark("claims", 95)
	e.projectClaims(ctx, project, theory, p, categories)

	hooks.mark("done", 100)
	return theory, nil
}

// preflight ensures the project has enough categories to theorise over,
// auto-coding and bootstrapping when it does not.
func (e *Engine) preflight(ctx context.Context, projectID uuid.UUID, scope store.Scope, req Request) (*store.Project, []store.Category, error) {
	project, err := e.db.GetProject(ctx, projectID, scope)
	if err != nil {
		return nil, nil, err
	}

	categories, err := e.db.ListCategories(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if len(categories) >= 2 {
		return project, categories, nil
	}

	uncoded, err := e.db.ListUncodedCompletedInterviews(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if len(uncoded) > 0 {
		runID := req.TaskID
		if runID == "" {
			runID = uuid.NewString()
		}
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(e.cfg.Pipeline.InterviewConcurrency)
		for _, interview := range uncoded {
			group.Go(func() error {
				if err := e.coder.AutoCodeInterview(groupCtx, projectID, interview.ID, scope, runID); err != nil {
					slog.Warn("preflight auto-coding failed for interview",
						"interview_id", interview.ID, "error", err)
				}
				return nil
			})
		}
		group.Wait()
	}

	categories, err = e.db.ListCategories(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if len(categories) < 2 {
		categories, err = e.db.BootstrapCategories(ctx, projectID)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(categories) >= 2 {
		return project, categories, nil
	}

	_, completed, err := e.db.CountInterviews(ctx, projectID)
	if err != nil {
		completed = 0
	}
	codes, err := e.db.CountCodes(ctx, projectID)
	if err != nil {
		codes = 0
	}
	return nil, nil, &InsufficientCategoriesError{
		Interviews: completed,
		Codes:      codes,
		Categories: len(categories),
	}
}

func (e *Engine) syncTaxonomy(ctx context.Context, project *store.Project, categories []store.Category) {
	stepCtx, cancel := e.stepContext(ctx)
	defer cancel()

	rows := make([]graph.CategoryRow, len(categories))
	for i, cat := range categories {
		rows[i] = graph.CategoryRow{
			ID:         cat.ID.String(),
			Name:       cat.Name,
			Definition: cat.Definition,
			IsCentral:  cat.IsCentral,
		}
	}

	var contains []graph.ContainsRow
	codes, err := e.db.ListCodes(ctx, project.ID)
	if err != nil {
		slog.Warn("failed to list codes for taxonomy sync", "error", err)
	} else {
		for _, code := range codes {
			if code.CategoryID != nil {
				contains = append(contains, graph.ContainsRow{
					CategoryID: code.CategoryID.String(),
					CodeID:     code.ID.String(),
				})
			}
		}
	}

	if err := e.graph.SyncTaxonomy(stepCtx, project.ID.String(), rows, contains); err != nil {
		slog.Warn("taxonomy sync failed, continuing", "error", err)
	}
}

func (e *Engine) networkMetrics(ctx context.Context, project *store.Project) *graph.NetworkMetrics {
	stepCtx, cancel := e.stepContext(ctx)
	defer cancel()

	if err := e.graph.MaterializeCoOccurrence(stepCtx, project.ID.String()); err != nil {
		slog.Warn("co-occurrence materialisation failed", "error", err)
	}
	network, err := e.graph.NetworkMetrics(stepCtx, project.ID.String())
	if err != nil {
		slog.Warn("network metrics unavailable, continuing without them", "error", err)
		return nil
	}
	return network
}

// categoryViews orders categories by graph centrality when metrics exist,
// alphabetically otherwise.
func categoryViews(categories []store.Category, network *graph.NetworkMetrics) []categoryView {
	byName := make(map[string]graph.CategoryMetrics)
	var order []string
	if network != nil {
		for _, m := range network.Categories {
			byName[m.Name] = m
			order = append(order, m.Name)
		}
	}

	views := make([]categoryView, 0, len(categories))
	rank := func(name string) int {
		for i, n := range order {
			if n == name {
				return i
			}
		}
		return len(order)
	}

	for _, cat := range categories {
		view := categoryView{Name: cat.Name, Definition: cat.Definition}
		if m, ok := byName[cat.Name]; ok {
			view.CodeDegree = m.CodeDegree
			view.FragmentDegree = m.FragmentDegree
			view.PageRank = m.PageRank
		}
		views = append(views, view)
	}

	// Insertion sort on centrality rank; category counts are small.
	for i := 1; i < len(views); i++ {
		for j := i; j > 0 && rank(views[j].Name) < rank(views[j-1].Name); j-- {
			views[j], views[j-1] = views[j-1], views[j]
		}
	}
	return views
}

func (e *Engine) stageCentralCategory(ctx context.Context, templateKey string, state *payloadState, views []categoryView) (string, budget.Debug, error) {
	raw, debug, err := e.runStage(ctx, llm.TaskCentralCategory, templateKey, state, state.centralCategoryPayload)
	if err != nil {
		return "", debug, err
	}

	var result centralCategoryResult
	if decodeErr := jsonx.Decode(raw, &result); decodeErr != nil || result.SelectedCentralCategory == "" {
		// Non-critical: fall back to the top-ranked category.
		if len(views) > 0 {
			slog.Warn("central category selection undecodable, using top-ranked category", "error", decodeErr)
			return views[0].Name, debug, nil
		}
		return "", debug, fmt.Errorf("central category selection failed: %w", decodeErr)
	}
	return result.SelectedCentralCategory, debug, nil
}

func (e *Engine) stageParadigm(ctx context.Context, templateKey string, state *payloadState, central string) (*paradigm.Paradigm, json.RawMessage, budget.Debug, error) {
	raw, debug, err := e.runStage(ctx, llm.TaskBuildParadigm, templateKey, state, func() string {
		return state.paradigmPayload(central)
	})
	if err != nil {
		return nil, nil, debug, err
	}

	p, err := paradigm.Decode(raw)
	if err != nil {
		return nil, nil, debug, fmt.Errorf("paradigm output undecodable: %w", err)
	}
	if p.SelectedCentralCategory == "" {
		p.SelectedCentralCategory = central
	}

	before, _ := json.Marshal(p)
	return p, before, debug, nil
}

func (e *Engine) stageSaturation(ctx context.Context, templateKey string, state *payloadState, p *paradigm.Paradigm) (*saturationResult, budget.Debug) {
	raw, debug, err := e.runStage(ctx, llm.TaskSaturation, templateKey, state, func() string {
		return state.saturationPayload(p)
	})
	if err != nil {
		slog.Warn("saturation analysis failed, using deterministic fallback", "error", err)
		return &saturationResult{ReadinessScore: p.ConfidenceScore, IdentifiedGaps: []string{}}, debug
	}

	var result saturationResult
	if err := jsonx.Decode(raw, &result); err != nil {
		slog.Warn("saturation output undecodable, using deterministic fallback", "error", err)
		return &saturationResult{ReadinessScore: p.ConfidenceScore, IdentifiedGaps: []string{}}, debug
	}
	if result.IdentifiedGaps == nil {
		result.IdentifiedGaps = []string{}
	}
	return &result, debug
}

// runStage passes one LLM stage through the budgeter and performs the call.
func (e *Engine) runStage(ctx context.Context, task, templateKey string, state *payloadState, buildPayload func() string) (string, budget.Debug, error) {
	model := llm.ModelForTask(&e.cfg.LLM, task)
	maxOut := e.cfg.LLM.StageMaxOutput(stageKey(task))

	var system, user string
	fit, err := budget.Fit(budget.FitRequest{
		Build: func() []budget.Message {
			system, user = BuildPrompt(task, templateKey, buildPayload())
			return []budget.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			}
		},
		Model:           model,
		ContextLimit:    e.cfg.LLM.ContextLimit(model),
		MaxOutputTokens: maxOut,
		Margin:          e.cfg.Pipeline.BudgetMargin,
		Degrade:         state.degrade,
		MaxSteps:        e.cfg.Pipeline.BudgetMaxSteps,
	})
	if err != nil {
		return "", budget.Debug{Model: model, Accepted: false}, err
	}

	if *e.cfg.Pipeline.UseDeterministicRouting {
		text, err := e.gateway.Reason(ctx, model, []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		}, maxOut)
		return text, fit.Debug, err
	}

	result, err := e.gateway.Route(ctx, task, system, user, maxOut)
	if err != nil {
		return "", fit.Debug, err
	}
	return result.Text, fit.Debug, nil
}

func stageKey(task string) string {
	switch task {
	case llm.TaskCentralCategory:
		return "central_category"
	case llm.TaskBuildParadigm:
		return "paradigm"
	case llm.TaskSaturation:
		return "saturation"
	default:
		return "repair"
	}
}

func (e *Engine) markCentral(ctx context.Context, projectID uuid.UUID, categories []store.Category, central string) {
	for _, cat := range categories {
		if normalizeName(cat.Name) == normalizeName(central) {
			if err := e.db.MarkCentralCategory(ctx, projectID, cat.ID); err != nil {
				slog.Warn("failed to mark central category", "error", err)
			}
			return
		}
	}
	slog.Warn("selected central category has no matching row", "central", central)
}

// runJudge decides the effective mode, validates, retries one targeted
// repair pass on strict failure, and re-validates.
func (e *Engine) runJudge(ctx context.Context, projectID uuid.UUID, templateKey string, p *paradigm.Paradigm, index evidenceIndex, knownNames []string, repairs *repairOutcome) (*judge.Result, error) {
	if !*e.cfg.Pipeline.UseJudge {
		return nil, nil
	}

	mode := judge.ModeWarnOnly
	if !*e.cfg.Pipeline.JudgeWarnOnly {
		outcomes, err := e.db.ListRecentJudgeOutcomes(ctx, projectID, e.cfg.Judge.Rollout.Window)
		if err != nil {
			slog.Warn("judge history unavailable, staying warn-only", "error", err)
		} else {
			mode = judge.DecideMode(outcomes, &e.cfg.Judge.Rollout)
		}
	}

	input, err := e.judgeInput(ctx, projectID, p, knownNames, mode)
	if err != nil {
		return nil, err
	}
	verdict := judge.Validate(input, &e.cfg.Judge)

	if !verdict.OK && mode == judge.ModeStrict {
		slog.Info("strict judge failed, running targeted repair", "errors", len(verdict.Errors))
		retry := e.runRepairs(ctx, templateKey, p, index, knownNames)
		repairs.Applied = append(repairs.Applied, retry.Applied...)

		input, err = e.judgeInput(ctx, projectID, p, knownNames, mode)
		if err != nil {
			return nil, err
		}
		verdict = judge.Validate(input, &e.cfg.Judge)
		if !verdict.OK {
			return verdict, &JudgeFailedError{Result: verdict}
		}
	}
	return verdict, nil
}

func (e *Engine) judgeInput(ctx context.Context, projectID uuid.UUID, p *paradigm.Paradigm, knownNames []string, mode string) (judge.Input, error) {
	cited := p.EvidenceIDs()
	var ids []uuid.UUID
	var missing []string
	for _, raw := range cited {
		id, err := uuid.Parse(raw)
		if err != nil {
			missing = append(missing, raw)
			continue
		}
		ids = append(ids, id)
	}

	mapping, err := e.db.FragmentInterviewMap(ctx, projectID, ids)
	if err != nil {
		return judge.Input{}, err
	}

	fragmentInterview := make(map[string]string, len(mapping))
	for _, id := range ids {
		if interviewID, ok := mapping[id]; ok {
			fragmentInterview[id.String()] = interviewID.String()
		} else {
			missing = append(missing, id.String())
		}
	}

	_, completed, err := e.db.CountInterviews(ctx, projectID)
	if err != nil {
		return judge.Input{}, err
	}

	return judge.Input{
		Paradigm:            p,
		FragmentInterview:   fragmentInterview,
		MissingEvidence:     missing,
		KnownCategories:     knownNames,
		AvailableInterviews: completed,
		Mode:                mode,
	}, nil
}

func (e *Engine) persist(ctx context.Context, projectID uuid.UUID, p *paradigm.Paradigm, before json.RawMessage, gaps *saturationResult, network *graph.NetworkMetrics, debugs map[string]budget.Debug, repairs repairOutcome, verdict *judge.Result, index evidenceIndex, templateKey string, req Request, status store.TheoryStatus) (*store.Theory, error) {
	after, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode paradigm: %w", err)
	}
	propositions, err := json.Marshal(p.Propositions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode propositions: %w", err)
	}

	evidenceUsed := make([]string, 0, len(index))
	for id := range index {
		evidenceUsed = append(evidenceUsed, id)
	}

	report := validationReport{
		GapAnalysis:           gaps,
		NetworkMetricsSummary: network,
		BudgetDebug:           debugs,
		ParadigmValidation: paradigmValidation{
			Before:            before,
			After:             after,
			RepairsApplied:    repairs.Applied,
			EvidenceIndexUsed: evidenceUsed,
		},
		Judge: verdict,
		PipelineRuntime: pipelineRuntime{
			TaskID:        req.TaskID,
			PromptVersion: e.cfg.Pipeline.PromptVersion,
			TemplateKey:   templateKey,
			Request:       &req,
		},
	}
	validation, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validation report: %w", err)
	}

	var gapsJSON json.RawMessage
	if gaps != nil {
		gapsJSON, _ = json.Marshal(gaps.IdentifiedGaps)
	} else {
		gapsJSON = json.RawMessage("[]")
	}

	theory := &store.Theory{
		ProjectID:       projectID,
		ModelJSON:       after,
		Propositions:    propositions,
		Validation:      validation,
		Gaps:            gapsJSON,
		ConfidenceScore: p.ConfidenceScore,
		Status:          status,
	}
	if err := e.db.SaveTheory(ctx, theory); err != nil {
		return nil, err
	}
	return theory, nil
}

// projectClaims writes the claim projection. Failures are logged; the theory
// is already safely persisted in the relational store.
func (e *Engine) projectClaims(ctx context.Context, project *store.Project, theory *store.Theory, p *paradigm.Paradigm, categories []store.Category) {
	if !*e.cfg.Pipeline.SyncClaimsGraph {
		return
	}

	claims := BuildClaims(theory.ID, p)
	if len(claims) == 0 {
		return
	}

	categoryIDByName := make(map[string]string, len(categories))
	centralID := ""
	for _, cat := range categories {
		categoryIDByName[normalizeName(cat.Name)] = cat.ID.String()
		if normalizeName(cat.Name) == normalizeName(p.SelectedCentralCategory) {
			centralID = cat.ID.String()
		}
	}

	rows, edges := claimRows(theory.ID, claims, categoryIDByName, centralID)

	stepCtx, cancel := e.stepContext(ctx)
	if err := e.graph.SyncClaims(stepCtx, project.ID.String(), theory.ID.String(), rows, edges); err != nil {
		slog.Warn("claim projection failed", "error", err)
	}
	cancel()

	if *e.cfg.Pipeline.SyncClaimsVector {
		e.syncClaimVectors(ctx, project, theory, claims)
	}
}

func (e *Engine) syncClaimVectors(ctx context.Context, project *store.Project, theory *store.Theory, claims []Claim) {
	texts := make([]string, len(claims))
	for i, claim := range claims {
		texts[i] = claim.Text
	}

	embeddings, err := e.gateway.Embed(ctx, texts)
	if err != nil {
		slog.Warn("claim embedding failed", "error", err)
		return
	}

	n := len(claims)
	if len(embeddings) < n {
		n = len(embeddings)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	points := make([]vector.Point, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, vector.Point{
			ID:     claims[i].ID.String(),
			Vector: embeddings[i],
			Payload: map[string]any{
				"text":        claims[i].Text,
				"project_id":  project.ID.String(),
				"owner_id":    project.OwnerID,
				"claim_id":    claims[i].ID.String(),
				"theory_id":   theory.ID.String(),
				"source_type": "claim",
				"created_at":  now,
			},
		})
	}

	stepCtx, cancel := e.stepContext(ctx)
	defer cancel()
	if err := e.vectors.Upsert(stepCtx, vector.ClaimCollection(project.ID.String()), points); err != nil {
		slog.Warn("claim vector sync failed", "error", err)
	}
}

func (e *Engine) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(e.cfg.Pipeline.StepTimeout)*time.Second)
}

func categoryNames(categories []store.Category) []string {
	out := make([]string, len(categories))
	for i, cat := range categories {
		out[i] = cat.Name
	}
	return out
}
