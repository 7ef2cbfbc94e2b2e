package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveTheory inserts a new theory version. Versions are per-project and
// monotonically increasing.
func (s *Store) SaveTheory(ctx context.Context, theory *Theory) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1 FROM theories WHERE project_id = $1`,
			theory.ProjectID)
		if err := row.Scan(&theory.Version); err != nil {
			return fmt.Errorf("failed to allocate theory version: %w", err)
		}

		if theory.ID == uuid.Nil {
			theory.ID = uuid.New()
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO theories
				(id, project_id, version, model_json, propositions, validation, gaps, confidence_score, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
			theory.ID, theory.ProjectID, theory.Version, theory.ModelJSON,
			theory.Propositions, theory.Validation, theory.Gaps,
			theory.ConfidenceScore, theory.Status)
		if err != nil {
			return fmt.Errorf("failed to save theory: %w", err)
		}
		return nil
	})
}

// GetTheory loads one theory by id.
func (s *Store) GetTheory(ctx context.Context, theoryID uuid.UUID) (*Theory, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, version, model_json, propositions, validation, gaps,
		       confidence_score, status, created_at
		FROM theories WHERE id = $1`, theoryID)

	var t Theory
	err := row.Scan(&t.ID, &t.ProjectID, &t.Version, &t.ModelJSON, &t.Propositions,
		&t.Validation, &t.Gaps, &t.ConfidenceScore, &t.Status, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load theory: %w", err)
	}
	return &t, nil
}

// JudgeOutcome is the judge verdict extracted from a stored theory, used by
// the rollout policy.
type JudgeOutcome struct {
	OK   bool   `json:"ok"`
	Mode string `json:"mode"`
}

// ListRecentJudgeOutcomes returns judge verdicts of the last limit theories,
// newest first. Theories without a recorded verdict are skipped.
func (s *Store) ListRecentJudgeOutcomes(ctx context.Context, projectID uuid.UUID, limit int) ([]JudgeOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT validation -> 'judge'
		FROM theories
		WHERE project_id = $1 AND validation ? 'judge'
		ORDER BY version DESC
		LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list judge outcomes: %w", err)
	}
	defer rows.Close()

	var out []JudgeOutcome
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan judge outcome: %w", err)
		}
		var outcome JudgeOutcome
		if err := json.Unmarshal(raw, &outcome); err != nil {
			continue
		}
		out = append(out, outcome)
	}
	return out, rows.Err()
}
