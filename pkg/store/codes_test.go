package store

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Transactions must be usable wherever the pool is.
var _ querier = pgx.Tx(nil)

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "mutual aid", NormalizeLabel("  Mutual Aid "))
	assert.Equal(t, "trust", NormalizeLabel("TRUST"))
	assert.Equal(t, "", NormalizeLabel("   "))
}

func testLinks(n int) []CodeFragmentLink {
	out := make([]CodeFragmentLink, n)
	for i := range out {
		start, end := i, i+10
		out[i] = CodeFragmentLink{
			CodeID:     uuid.New(),
			FragmentID: uuid.New(),
			Confidence: 0.5,
			Source:     SourceAI,
			CharStart:  &start,
			CharEnd:    &end,
		}
	}
	return out
}

func TestBuildLinkInsertBindsEveryPlaceholder(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		links := testLinks(n)
		sql, args := buildLinkInsert(links)

		// Six bound parameters per row; linked_at comes from now().
		require.Len(t, args, n*6)
		assert.Equal(t, n, strings.Count(sql, "now()"))

		max := 0
		for _, m := range regexp.MustCompile(`\$(\d+)`).FindAllStringSubmatch(sql, -1) {
			v, err := strconv.Atoi(m[1])
			require.NoError(t, err)
			if v > max {
				max = v
			}
		}
		assert.Equal(t, len(args), max, "highest placeholder must match the argument count for %d rows", n)
	}
}

func TestBuildLinkInsertUpsertsOnConflict(t *testing.T) {
	sql, _ := buildLinkInsert(testLinks(1))
	assert.Contains(t, sql, "ON CONFLICT (code_id, fragment_id) DO UPDATE")
	assert.Contains(t, sql, "confidence = EXCLUDED.confidence")
}

type fakeCodeRows struct {
	codes []Code
	i     int
}

func (r *fakeCodeRows) Close()                                       {}
func (r *fakeCodeRows) Err() error                                   { return nil }
func (r *fakeCodeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeCodeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeCodeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeCodeRows) RawValues() [][]byte                          { return nil }
func (r *fakeCodeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeCodeRows) Next() bool {
	r.i++
	return r.i <= len(r.codes)
}

func (r *fakeCodeRows) Scan(dest ...any) error {
	c := r.codes[r.i-1]
	*(dest[0].(*uuid.UUID)) = c.ID
	*(dest[1].(*uuid.UUID)) = c.ProjectID
	*(dest[2].(*string)) = c.Label
	*(dest[3].(*string)) = c.Definition
	*(dest[4].(**uuid.UUID)) = c.CategoryID
	*(dest[5].(*string)) = c.CreatedBy
	return nil
}

type fakeQuerier struct {
	rows  *fakeCodeRows
	calls int
}

func (q *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	q.calls++
	return q.rows, nil
}

func TestListCodesReadsThroughProvidedQuerier(t *testing.T) {
	projectID := uuid.New()
	q := &fakeQuerier{rows: &fakeCodeRows{codes: []Code{
		{ID: uuid.New(), ProjectID: projectID, Label: "belonging", CreatedBy: "ai"},
		{ID: uuid.New(), ProjectID: projectID, Label: "precarity", CreatedBy: "human"},
	}}}

	codes, err := listCodes(context.Background(), q, projectID)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, 1, q.calls)
	assert.Equal(t, "belonging", codes[0].Label)
	assert.Equal(t, "precarity", codes[1].Label)
}
