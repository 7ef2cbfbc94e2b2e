package theory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axialab/axial/pkg/budget"
	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/judge"
	"github.com/axialab/axial/pkg/llm"
	"github.com/axialab/axial/pkg/paradigm"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/vector"
)

type fakeRelational struct {
	project    *store.Project
	categories []store.Category
	bootstrap  []store.Category
	uncoded    []store.Interview
	codes      []store.Code
	completed  int
	codeCount  int
	outcomes   []store.JudgeOutcome
	fragments  map[uuid.UUID]uuid.UUID

	saved     []*store.Theory
	centralID uuid.UUID
}

func (f *fakeRelational) GetProject(_ context.Context, projectID uuid.UUID, _ store.Scope) (*store.Project, error) {
	if f.project == nil || f.project.ID != projectID {
		return nil, store.ErrNotFound
	}
	return f.project, nil
}

func (f *fakeRelational) ListCategories(context.Context, uuid.UUID) ([]store.Category, error) {
	return f.categories, nil
}

func (f *fakeRelational) BootstrapCategories(context.Context, uuid.UUID) ([]store.Category, error) {
	f.categories = append(f.categories, f.bootstrap...)
	return f.categories, nil
}

func (f *fakeRelational) ListUncodedCompletedInterviews(context.Context, uuid.UUID) ([]store.Interview, error) {
	return f.uncoded, nil
}

func (f *fakeRelational) CountInterviews(context.Context, uuid.UUID) (int, int, error) {
	return f.completed, f.completed, nil
}

func (f *fakeRelational) CountCodes(context.Context, uuid.UUID) (int, error) {
	return f.codeCount, nil
}

func (f *fakeRelational) ListCodes(context.Context, uuid.UUID) ([]store.Code, error) {
	return f.codes, nil
}

func (f *fakeRelational) FragmentInterviewMap(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID)
	for _, id := range ids {
		if interviewID, ok := f.fragments[id]; ok {
			out[id] = interviewID
		}
	}
	return out, nil
}

func (f *fakeRelational) SaveTheory(_ context.Context, theory *store.Theory) error {
	theory.ID = uuid.New()
	theory.Version = len(f.saved) + 1
	f.saved = append(f.saved, theory)
	return nil
}

func (f *fakeRelational) ListRecentJudgeOutcomes(context.Context, uuid.UUID, int) ([]store.JudgeOutcome, error) {
	return f.outcomes, nil
}

func (f *fakeRelational) MarkCentralCategory(_ context.Context, _ uuid.UUID, categoryID uuid.UUID) error {
	f.centralID = categoryID
	return nil
}

type fakeGraphStore struct {
	network *graph.NetworkMetrics

	taxonomySynced bool
	claimRows      []graph.ClaimRow
	claimEdges     []graph.ClaimEdgeRow
	failAll        bool
}

func (f *fakeGraphStore) SyncTaxonomy(context.Context, string, []graph.CategoryRow, []graph.ContainsRow) error {
	if f.failAll {
		return errors.New("graph down")
	}
	f.taxonomySynced = true
	return nil
}

func (f *fakeGraphStore) MaterializeCoOccurrence(context.Context, string) error {
	if f.failAll {
		return errors.New("graph down")
	}
	return nil
}

func (f *fakeGraphStore) NetworkMetrics(context.Context, string) (*graph.NetworkMetrics, error) {
	if f.failAll {
		return nil, errors.New("graph down")
	}
	return f.network, nil
}

func (f *fakeGraphStore) SyncClaims(_ context.Context, _, _ string, claims []graph.ClaimRow, edges []graph.ClaimEdgeRow) error {
	if f.failAll {
		return errors.New("graph down")
	}
	f.claimRows = claims
	f.claimEdges = edges
	return nil
}

type fakeVectorStore struct {
	hits     []vector.Hit
	upserted map[string][]vector.Point
}

func (f *fakeVectorStore) Search(context.Context, string, []float32, int, map[string]string) ([]vector.Hit, error) {
	return f.hits, nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, collection string, points []vector.Point) error {
	if f.upserted == nil {
		f.upserted = map[string][]vector.Point{}
	}
	f.upserted[collection] = append(f.upserted[collection], points...)
	return nil
}

type fakeCoder struct {
	coded []uuid.UUID
}

func (f *fakeCoder) AutoCodeInterview(_ context.Context, _, interviewID uuid.UUID, _ store.Scope, _ string) error {
	f.coded = append(f.coded, interviewID)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	return cfg
}

func testFixture() (*fakeRelational, *fakeGraphStore, *fakeVectorStore) {
	projectID := uuid.New()
	belonging := store.Category{ID: uuid.New(), ProjectID: projectID, Name: "sense of belonging", Definition: "feeling part of a group"}
	precarity := store.Category{ID: uuid.New(), ProjectID: projectID, Name: "precarity", Definition: "unstable material conditions"}

	db := &fakeRelational{
		project:    &store.Project{ID: projectID, OwnerID: "owner-1", DomainTemplate: "generic"},
		categories: []store.Category{precarity, belonging},
		completed:  3,
		fragments:  map[uuid.UUID]uuid.UUID{},
	}

	graphStore := &fakeGraphStore{
		network: &graph.NetworkMetrics{
			CategoryCount: 2,
			Categories: []graph.CategoryMetrics{
				{ID: belonging.ID.String(), Name: "sense of belonging", CodeDegree: 4, FragmentDegree: 9},
				{ID: precarity.ID.String(), Name: "precarity", CodeDegree: 2, FragmentDegree: 3},
			},
		},
	}

	fragmentID := uuid.New()
	db.fragments[fragmentID] = uuid.New()
	vectors := &fakeVectorStore{
		hits: []vector.Hit{
			{ID: fragmentID.String(), Score: 0.91, Payload: map[string]any{"text": "we finally felt part of something"}},
		},
	}
	return db, graphStore, vectors
}

func TestGenerateTheoryHappyPath(t *testing.T) {
	db, graphStore, vectors := testFixture()
	cfg := testConfig()
	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), &fakeCoder{}, cfg)

	var steps []string
	hooks := Hooks{MarkStep: func(step string, _ int) { steps = append(steps, step) }}

	theory, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{OwnerID: "owner-1"}, Request{TaskID: "task-1"}, hooks)
	require.NoError(t, err)
	require.NotNil(t, theory)
	assert.Equal(t, store.TheoryCompleted, theory.Status)
	assert.InDelta(t, 0.75, theory.ConfidenceScore, 0.001)

	// The mock selects "sense of belonging"; its row is marked central.
	assert.Equal(t, db.categories[1].ID, db.centralID)
	assert.True(t, graphStore.taxonomySynced)

	var propositions []paradigm.Item
	require.NoError(t, json.Unmarshal(theory.Propositions, &propositions))
	assert.Len(t, propositions, 5)

	var report validationReport
	require.NoError(t, json.Unmarshal(theory.Validation, &report))
	assert.Contains(t, report.BudgetDebug, "central_category")
	assert.Contains(t, report.BudgetDebug, "paradigm")
	assert.Contains(t, report.BudgetDebug, "saturation")
	assert.Equal(t, "task-1", report.PipelineRuntime.TaskID)
	assert.Equal(t, "generic", report.PipelineRuntime.TemplateKey)

	// First run for the project: the rollout policy keeps the judge in
	// warn-only mode, so the mock's unresolvable evidence ids surface as
	// recorded errors without failing the pipeline.
	require.NotNil(t, report.Judge)
	assert.Equal(t, "warn_only", report.Judge.Mode)
	assert.False(t, report.Judge.OK)

	assert.Equal(t, []string{
		"preflight", "taxonomy_sync", "network_metrics", "evidence",
		"central_category", "paradigm", "saturation", "repair",
		"persist", "claims", "done",
	}, steps)

	// Claims were projected into the graph: 1 condition, 1 context,
	// 1 intervening, 1 action, 6 consequences, 5 propositions.
	assert.Len(t, graphStore.claimRows, 15)
	assert.NotEmpty(t, graphStore.claimEdges)
}

func TestGenerateTheoryStrictRejectionPersistsDraft(t *testing.T) {
	db, graphStore, vectors := testFixture()
	// A clean strict history keeps the rollout policy in strict mode, and
	// the mock's unresolvable evidence ids make the judge reject the run.
	db.outcomes = []store.JudgeOutcome{
		{OK: true, Mode: judge.ModeStrict},
		{OK: true, Mode: judge.ModeStrict},
		{OK: true, Mode: judge.ModeStrict},
	}
	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), &fakeCoder{}, testConfig())

	theory, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{OwnerID: "owner-1"}, Request{}, Hooks{})

	var judgeErr *JudgeFailedError
	require.ErrorAs(t, err, &judgeErr)
	assert.Nil(t, theory)

	// The rejected run is still on record as a draft, so later runs see
	// this failure in the judge history and can demote to warn-only.
	require.Len(t, db.saved, 1)
	draft := db.saved[0]
	assert.Equal(t, store.TheoryDraft, draft.Status)

	var report validationReport
	require.NoError(t, json.Unmarshal(draft.Validation, &report))
	require.NotNil(t, report.Judge)
	assert.Equal(t, judge.ModeStrict, report.Judge.Mode)
	assert.False(t, report.Judge.OK)
	assert.NotEmpty(t, report.Judge.Errors)
}

// recordingGateway captures every routed prompt.
type recordingGateway struct {
	llm.Gateway
	prompts []string
}

func (r *recordingGateway) Route(ctx context.Context, task, system, prompt string, maxOutputTokens int) (*llm.RouteResult, error) {
	r.prompts = append(r.prompts, prompt)
	return r.Gateway.Route(ctx, task, system, prompt, maxOutputTokens)
}

func (r *recordingGateway) Reason(ctx context.Context, model string, messages []llm.Message, maxOutputTokens int) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			r.prompts = append(r.prompts, m.Content)
		}
	}
	return r.Gateway.Reason(ctx, model, messages, maxOutputTokens)
}

func TestGenerateTheorySubgraphEvidenceToggle(t *testing.T) {
	run := func(t *testing.T, enabled bool) []string {
		db, graphStore, vectors := testFixture()
		cfg := testConfig()
		cfg.Pipeline.UseSubgraphEvidence = config.BoolPtr(enabled)
		gateway := &recordingGateway{Gateway: llm.NewMockGateway(8)}
		engine := New(db, graphStore, vectors, gateway, &fakeCoder{}, cfg)

		_, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{OwnerID: "owner-1"}, Request{}, Hooks{})
		require.NoError(t, err)
		return gateway.prompts
	}

	withNetwork := strings.Join(run(t, true), "\n")
	assert.Contains(t, withNetwork, `"category_count"`)

	withoutNetwork := strings.Join(run(t, false), "\n")
	assert.NotContains(t, withoutNetwork, `"category_count"`)
}

func TestGenerateTheoryProjectNotFound(t *testing.T) {
	db, graphStore, vectors := testFixture()
	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), &fakeCoder{}, testConfig())

	_, err := engine.GenerateTheory(context.Background(), uuid.New(), store.Scope{}, Request{}, Hooks{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerateTheoryInsufficientCategories(t *testing.T) {
	db, graphStore, vectors := testFixture()
	db.categories = db.categories[:1]
	db.bootstrap = nil
	db.completed = 2
	db.codeCount = 4
	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), &fakeCoder{}, testConfig())

	_, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{}, Request{}, Hooks{})

	var insufficient *InsufficientCategoriesError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Interviews)
	assert.Equal(t, 4, insufficient.Codes)
	assert.Equal(t, 1, insufficient.Categories)
}

func TestPreflightAutoCodesUncodedInterviews(t *testing.T) {
	db, graphStore, vectors := testFixture()
	db.categories = nil
	db.uncoded = []store.Interview{
		{ID: uuid.New(), Status: store.InterviewCompleted},
		{ID: uuid.New(), Status: store.InterviewCompleted},
	}
	db.bootstrap = []store.Category{
		{ID: uuid.New(), Name: "sense of belonging"},
		{ID: uuid.New(), Name: "precarity"},
	}
	coder := &fakeCoder{}
	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), coder, testConfig())

	theory, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{}, Request{}, Hooks{})
	require.NoError(t, err)
	require.NotNil(t, theory)
	assert.Len(t, coder.coded, 2)
}

func TestGenerateTheorySurvivesGraphOutage(t *testing.T) {
	db, graphStore, vectors := testFixture()
	graphStore.failAll = true
	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), &fakeCoder{}, testConfig())

	theory, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{}, Request{}, Hooks{})
	require.NoError(t, err)
	require.NotNil(t, theory)

	var report validationReport
	require.NoError(t, json.Unmarshal(theory.Validation, &report))
	assert.Nil(t, report.NetworkMetricsSummary)
}

func TestGenerateTheoryDegradesUnderBudgetPressure(t *testing.T) {
	db, graphStore, vectors := testFixture()
	long := strings.Repeat("the participants described their daily routines in detail ", 80)
	vectors.hits = []vector.Hit{
		{ID: uuid.NewString(), Score: 0.9, Payload: map[string]any{"text": long}},
		{ID: uuid.NewString(), Score: 0.8, Payload: map[string]any{"text": long}},
		{ID: uuid.NewString(), Score: 0.7, Payload: map[string]any{"text": long}},
	}

	cfg := testConfig()
	cfg.LLM.ContextLimits = map[string]int{
		cfg.LLM.ReasoningModel: 2048,
		cfg.LLM.FastModel:      2048,
	}
	cfg.LLM.MaxOutputTokens = map[string]int{
		"central_category": 128,
		"paradigm":         128,
		"saturation":       128,
		"repair":           128,
	}
	cfg.Pipeline.BudgetMargin = 128
	cfg.Pipeline.BudgetMaxSteps = 20

	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), &fakeCoder{}, cfg)

	theory, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{}, Request{}, Hooks{})
	require.NoError(t, err)

	var report validationReport
	require.NoError(t, json.Unmarshal(theory.Validation, &report))

	var steps []budget.Step
	steps = append(steps, report.BudgetDebug["central_category"].DegradationSteps...)
	steps = append(steps, report.BudgetDebug["paradigm"].DegradationSteps...)
	require.NotEmpty(t, steps)

	// Evidence density shrinks before anything else is sacrificed.
	assert.True(t, strings.HasPrefix(steps[0].Description, "frags_per_cat="), steps[0].Description)
}

func TestGenerateTheoryClaimVectorsWhenEnabled(t *testing.T) {
	db, graphStore, vectors := testFixture()
	cfg := testConfig()
	cfg.Pipeline.SyncClaimsVector = config.BoolPtr(true)
	engine := New(db, graphStore, vectors, llm.NewMockGateway(8), &fakeCoder{}, cfg)

	theory, err := engine.GenerateTheory(context.Background(), db.project.ID, store.Scope{}, Request{}, Hooks{})
	require.NoError(t, err)

	collection := vector.ClaimCollection(db.project.ID.String())
	points := vectors.upserted[collection]
	require.Len(t, points, 15)
	assert.Equal(t, "claim", points[0].Payload["source_type"])
	assert.Equal(t, theory.ID.String(), points[0].Payload["theory_id"])
}
