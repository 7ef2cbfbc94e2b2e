package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NormalizeLabel is the canonical code-label key: trimmed, lowercased.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// LoadCodeCache returns the project's codes keyed by normalized label.
// The cache is owned by one interview's coding run; the parallel
// classification phase reads it but never mutates it.
func (s *Store) LoadCodeCache(ctx context.Context, projectID uuid.UUID) (map[string]*Code, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, label, definition, category_id, created_by
		FROM codes WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load code cache: %w", err)
	}
	defer rows.Close()

	cache := make(map[string]*Code)
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Label, &c.Definition, &c.CategoryID, &c.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		cache[NormalizeLabel(c.Label)] = &c
	}
	return cache, rows.Err()
}

// GetOrCreateCode inserts a code under normalized-label uniqueness, returning
// the existing row when another writer got there first.
func (s *Store) GetOrCreateCode(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, label, definition, createdBy string) (*Code, error) {
	normalized := NormalizeLabel(label)
	if normalized == "" {
		return nil, fmt.Errorf("code label is empty")
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO codes (id, project_id, label, definition, created_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, lower(trim(label))) DO UPDATE SET label = codes.label
		RETURNING id, project_id, label, definition, category_id, created_by`,
		uuid.New(), projectID, strings.TrimSpace(label), definition, createdBy)

	var c Code
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Label, &c.Definition, &c.CategoryID, &c.CreatedBy); err != nil {
		return nil, fmt.Errorf("failed to get-or-create code %q: %w", normalized, err)
	}
	return &c, nil
}

// BulkInsertLinks writes code↔fragment links in one multi-row statement with
// conflict-ignoring semantics on the composite primary key. Re-running a
// coding pass therefore never duplicates links.
func (s *Store) BulkInsertLinks(ctx context.Context, tx pgx.Tx, links []CodeFragmentLink) error {
	if len(links) == 0 {
		return nil
	}

	sql, args := buildLinkInsert(links)
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to bulk insert links: %w", err)
	}
	return nil
}

// buildLinkInsert renders the multi-row statement. Each row binds six
// parameters; linked_at is set server-side.
func buildLinkInsert(links []CodeFragmentLink) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO code_fragment_links
		(code_id, fragment_id, confidence, source, char_start, char_end, linked_at)
		VALUES `)
	args := make([]interface{}, 0, len(links)*6)
	for i, link := range links {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, now())",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, link.CodeID, link.FragmentID, link.Confidence, link.Source, link.CharStart, link.CharEnd)
	}
	sb.WriteString(` ON CONFLICT (code_id, fragment_id) DO UPDATE SET
		confidence = EXCLUDED.confidence,
		source = EXCLUDED.source,
		char_start = EXCLUDED.char_start,
		char_end = EXCLUDED.char_end,
		linked_at = EXCLUDED.linked_at`)
	return sb.String(), args
}

// ListLinksForInterview returns all code links touching an interview's
// fragments, for projection sync.
func (s *Store) ListLinksForInterview(ctx context.Context, interviewID uuid.UUID) ([]CodeFragmentLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.code_id, l.fragment_id, l.confidence, l.source, l.char_start, l.char_end, l.linked_at
		FROM code_fragment_links l
		JOIN fragments f ON f.id = l.fragment_id
		WHERE f.interview_id = $1`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var out []CodeFragmentLink
	for rows.Next() {
		var l CodeFragmentLink
		if err := rows.Scan(&l.CodeID, &l.FragmentID, &l.Confidence, &l.Source, &l.CharStart, &l.CharEnd, &l.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountCodes returns the number of codes in a project.
func (s *Store) CountCodes(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM codes WHERE project_id = $1`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count codes: %w", err)
	}
	return n, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ListCodes returns all codes of a project.
func (s *Store) ListCodes(ctx context.Context, projectID uuid.UUID) ([]Code, error) {
	return listCodes(ctx, s.pool, projectID)
}

func listCodes(ctx context.Context, q querier, projectID uuid.UUID) ([]Code, error) {
	rows, err := q.Query(ctx, `
		SELECT id, project_id, label, definition, category_id, created_by
		FROM codes WHERE project_id = $1 ORDER BY label`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	var out []Code
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Label, &c.Definition, &c.CategoryID, &c.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
