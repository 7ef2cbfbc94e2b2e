package coding

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/graph"
	"github.com/axialab/axial/pkg/jsonx"
	"github.com/axialab/axial/pkg/llm"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/vector"
)

type fakeDB struct {
	project   *store.Project
	fragments []store.Fragment
	cache     map[string]*store.Code

	createdLabels []string
	links         []store.CodeFragmentLink
	embedded      []uuid.UUID
}

func (f *fakeDB) GetProject(_ context.Context, projectID uuid.UUID, _ store.Scope) (*store.Project, error) {
	if f.project == nil || f.project.ID != projectID {
		return nil, store.ErrNotFound
	}
	return f.project, nil
}

func (f *fakeDB) GetInterview(_ context.Context, _ uuid.UUID) (*store.Interview, error) {
	return &store.Interview{Status: store.InterviewCompleted}, nil
}

func (f *fakeDB) ListFragments(_ context.Context, _ uuid.UUID) ([]store.Fragment, error) {
	return f.fragments, nil
}

func (f *fakeDB) LoadCodeCache(_ context.Context, _ uuid.UUID) (map[string]*store.Code, error) {
	if f.cache == nil {
		f.cache = map[string]*store.Code{}
	}
	return f.cache, nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeDB) GetOrCreateCode(_ context.Context, _ pgx.Tx, projectID uuid.UUID, label, definition, createdBy string) (*store.Code, error) {
	f.createdLabels = append(f.createdLabels, label)
	return &store.Code{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Label:      label,
		Definition: definition,
		CreatedBy:  createdBy,
	}, nil
}

func (f *fakeDB) BulkInsertLinks(_ context.Context, _ pgx.Tx, links []store.CodeFragmentLink) error {
	f.links = append(f.links, links...)
	return nil
}

func (f *fakeDB) ListLinksForInterview(_ context.Context, _ uuid.UUID) ([]store.CodeFragmentLink, error) {
	return f.links, nil
}

func (f *fakeDB) MarkFragmentsEmbedded(_ context.Context, fragmentIDs []uuid.UUID) error {
	f.embedded = append(f.embedded, fragmentIDs...)
	return nil
}

type fakeGraph struct {
	projectID string
	fragments []graph.FragmentRow
	codes     []graph.CodeRow
	edges     []graph.CodedEdgeRow
	err       error
}

func (f *fakeGraph) SyncCodedInterview(_ context.Context, projectID, _ string, fragments []graph.FragmentRow, codes []graph.CodeRow, edges []graph.CodedEdgeRow) error {
	if f.err != nil {
		return f.err
	}
	f.projectID = projectID
	f.fragments = fragments
	f.codes = codes
	f.edges = edges
	return nil
}

type fakeVectors struct {
	collection string
	points     []vector.Point
	err        error
}

func (f *fakeVectors) Upsert(_ context.Context, collection string, points []vector.Point) error {
	if f.err != nil {
		return f.err
	}
	f.collection = collection
	f.points = append(f.points, points...)
	return nil
}

type failingGateway struct {
	embedWidth int
	embedShort int
}

func (g *failingGateway) Embed(_ context.Context, texts []string) ([][]float32, error) {
	n := len(texts) - g.embedShort
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, g.embedWidth)
	}
	return out, nil
}

func (g *failingGateway) Reason(context.Context, string, []llm.Message, int) (string, error) {
	return "", errors.New("model unavailable")
}

func (g *failingGateway) Route(context.Context, string, string, string, int) (*llm.RouteResult, error) {
	return nil, errors.New("model unavailable")
}

// scriptedGateway answers every classification with a fixed response.
type scriptedGateway struct {
	response string
}

func (g *scriptedGateway) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 8)
	}
	return out, nil
}

func (g *scriptedGateway) Reason(context.Context, string, []llm.Message, int) (string, error) {
	return g.response, nil
}

func (g *scriptedGateway) Route(context.Context, string, string, string, int) (*llm.RouteResult, error) {
	return &llm.RouteResult{Text: g.response}, nil
}

func testConfig() *config.PipelineConfig {
	cfg := &config.PipelineConfig{}
	cfg.SetDefaults()
	return cfg
}

func testProject() *store.Project {
	return &store.Project{ID: uuid.New(), TenantID: "t1", OwnerID: "u1"}
}

func testFragments(interviewID uuid.UUID, texts ...string) []store.Fragment {
	out := make([]store.Fragment, len(texts))
	offset := 0
	for i, text := range texts {
		out[i] = store.Fragment{
			ID:          uuid.New(),
			InterviewID: interviewID,
			Text:        text,
			StartOffset: offset,
			EndOffset:   offset + len(text),
		}
		offset += len(text) + 1
	}
	return out
}

func TestAutoCodeInterviewProjectNotFound(t *testing.T) {
	db := &fakeDB{}
	engine := New(db, &fakeGraph{}, &fakeVectors{}, llm.NewMockGateway(8), testConfig())

	err := engine.AutoCodeInterview(context.Background(), uuid.New(), uuid.New(), store.Scope{OwnerID: "u1"}, "run-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAutoCodeInterviewEmptyInterview(t *testing.T) {
	project := testProject()
	db := &fakeDB{project: project}
	graphSink := &fakeGraph{}
	engine := New(db, graphSink, &fakeVectors{}, llm.NewMockGateway(8), testConfig())

	err := engine.AutoCodeInterview(context.Background(), project.ID, uuid.New(), store.Scope{OwnerID: "u1"}, "run-1")
	require.NoError(t, err)
	assert.Empty(t, db.links)
	assert.Empty(t, graphSink.edges)
}

func TestAutoCodeInterviewCodesAndSyncs(t *testing.T) {
	project := testProject()
	interviewID := uuid.New()
	db := &fakeDB{
		project:   project,
		fragments: testFragments(interviewID, "I finally felt part of the group", "The rules kept changing"),
	}
	graphSink := &fakeGraph{}
	vectorSink := &fakeVectors{}
	engine := New(db, graphSink, vectorSink, llm.NewMockGateway(8), testConfig())

	err := engine.AutoCodeInterview(context.Background(), project.ID, interviewID, store.Scope{OwnerID: "u1"}, "run-1")
	require.NoError(t, err)

	// The mock emits one code per fragment under the same label, so the
	// second fragment hits the cache instead of creating a duplicate.
	assert.Len(t, db.createdLabels, 1)
	assert.Len(t, db.links, 2)
	for _, link := range db.links {
		assert.Equal(t, store.SourceAI, link.Source)
		assert.InDelta(t, 0.82, link.Confidence, 0.001)
	}

	assert.Equal(t, project.ID.String(), graphSink.projectID)
	assert.Len(t, graphSink.fragments, 2)
	assert.Len(t, graphSink.codes, 1)
	assert.Len(t, graphSink.edges, 2)
	for _, edge := range graphSink.edges {
		assert.Equal(t, "run-1", edge.RunID)
		assert.Equal(t, "ai", edge.Source)
	}

	assert.Equal(t, vector.FragmentCollection(project.ID.String()), vectorSink.collection)
	require.Len(t, vectorSink.points, 2)
	payload := vectorSink.points[0].Payload
	assert.Equal(t, "fragment", payload["source_type"])
	assert.Equal(t, project.ID.String(), payload["project_id"])
	assert.Equal(t, "u1", payload["owner_id"])
	assert.Len(t, db.embedded, 2)
}

func TestAutoCodeInterviewProjectsManualLinksToo(t *testing.T) {
	project := testProject()
	interviewID := uuid.New()
	fragments := testFragments(interviewID, "I finally felt part of the group")

	manual := &store.Code{ID: uuid.New(), ProjectID: project.ID, Label: "manual theme", CreatedBy: "human"}
	db := &fakeDB{
		project:   project,
		fragments: fragments,
		cache:     map[string]*store.Code{store.NormalizeLabel(manual.Label): manual},
		links: []store.CodeFragmentLink{{
			CodeID:     manual.ID,
			FragmentID: fragments[0].ID,
			Confidence: 1,
			Source:     store.SourceHuman,
		}},
	}
	graphSink := &fakeGraph{}
	engine := New(db, graphSink, &fakeVectors{}, llm.NewMockGateway(8), testConfig())

	err := engine.AutoCodeInterview(context.Background(), project.ID, interviewID, store.Scope{OwnerID: "u1"}, "run-2")
	require.NoError(t, err)

	// The projection carries the earlier manual link alongside this run's.
	assert.Len(t, graphSink.edges, 2)
	assert.Len(t, graphSink.codes, 2)
	sources := []string{graphSink.edges[0].Source, graphSink.edges[1].Source}
	assert.Contains(t, sources, "human")
	assert.Contains(t, sources, "ai")
}

func TestAutoCodeInterviewCollapsesDuplicateLabels(t *testing.T) {
	project := testProject()
	interviewID := uuid.New()
	db := &fakeDB{
		project:   project,
		fragments: testFragments(interviewID, "neighbours organised mutual aid"),
	}
	gateway := &scriptedGateway{response: `{"extracted_codes": [
		{"label": "Mutual Aid", "confidence": 0.6},
		{"label": "  mutual aid ", "confidence": 0.9}
	]}`}
	engine := New(db, &fakeGraph{}, &fakeVectors{}, gateway, testConfig())

	err := engine.AutoCodeInterview(context.Background(), project.ID, interviewID, store.Scope{OwnerID: "u1"}, "run-1")
	require.NoError(t, err)

	// Both labels normalize to the same code, and one bulk statement can
	// only bind each (code, fragment) pair once. The higher confidence wins.
	assert.Len(t, db.createdLabels, 1)
	require.Len(t, db.links, 1)
	assert.InDelta(t, 0.9, db.links[0].Confidence, 0.001)
}

func TestAutoCodeInterviewClassificationFailureDegrades(t *testing.T) {
	project := testProject()
	interviewID := uuid.New()
	db := &fakeDB{
		project:   project,
		fragments: testFragments(interviewID, "some text"),
	}
	engine := New(db, &fakeGraph{}, &fakeVectors{}, &failingGateway{embedWidth: 8}, testConfig())

	err := engine.AutoCodeInterview(context.Background(), project.ID, interviewID, store.Scope{OwnerID: "u1"}, "run-1")
	require.NoError(t, err)
	assert.Empty(t, db.links)
	assert.Empty(t, db.createdLabels)
}

func TestAutoCodeInterviewTruncatedEmbeddings(t *testing.T) {
	project := testProject()
	interviewID := uuid.New()
	db := &fakeDB{
		project:   project,
		fragments: testFragments(interviewID, "one", "two", "three"),
	}
	vectorSink := &fakeVectors{}
	engine := New(db, &fakeGraph{}, vectorSink, &failingGateway{embedWidth: 8, embedShort: 1}, testConfig())

	err := engine.AutoCodeInterview(context.Background(), project.ID, interviewID, store.Scope{OwnerID: "u1"}, "run-1")
	require.NoError(t, err)

	// Only fragments whose embeddings actually came back are marked synced.
	assert.Len(t, vectorSink.points, 2)
	assert.Len(t, db.embedded, 2)
}

func TestAutoCodeInterviewSurvivesProjectionFailures(t *testing.T) {
	project := testProject()
	interviewID := uuid.New()
	db := &fakeDB{
		project:   project,
		fragments: testFragments(interviewID, "some text"),
	}
	engine := New(db,
		&fakeGraph{err: errors.New("graph down")},
		&fakeVectors{err: errors.New("vector down")},
		llm.NewMockGateway(8), testConfig())

	err := engine.AutoCodeInterview(context.Background(), project.ID, interviewID, store.Scope{OwnerID: "u1"}, "run-1")
	require.NoError(t, err)
	assert.Len(t, db.links, 1)
	assert.Empty(t, db.embedded)
}

func TestFindSpan(t *testing.T) {
	text := "The Team made me feel Welcome from day one"

	start, end := findSpan(text, "feel Welcome")
	require.NotNil(t, start)
	assert.Equal(t, "feel Welcome", text[*start:*end])

	start, end = findSpan(text, "FEEL WELCOME")
	require.NotNil(t, start)
	assert.Equal(t, "feel Welcome", text[*start:*end])

	start, end = findSpan(text, "not present")
	assert.Nil(t, start)
	assert.Nil(t, end)

	start, end = findSpan(text, "")
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestExtractedCodeDecodesBareStrings(t *testing.T) {
	var response classifyResponse
	raw := `{"extracted_codes": ["institutional distrust", {"label": "hope", "confidence": 0.9}]}`
	require.NoError(t, jsonx.Decode(raw, &response))

	require.Len(t, response.ExtractedCodes, 2)
	assert.Equal(t, "institutional distrust", response.ExtractedCodes[0].Label)
	assert.InDelta(t, 0.5, response.ExtractedCodes[0].Confidence, 0.001)
	assert.Equal(t, "hope", response.ExtractedCodes[1].Label)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, clampConfidence(-0.2))
	assert.Equal(t, 1.0, clampConfidence(1.7))
	assert.Equal(t, 0.6, clampConfidence(0.6))
}
