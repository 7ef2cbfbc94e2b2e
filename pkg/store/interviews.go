package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetInterview loads one interview by id.
func (s *Store) GetInterview(ctx context.Context, interviewID uuid.UUID) (*Interview, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, status, full_text, word_count, language
		FROM interviews WHERE id = $1`, interviewID)

	var iv Interview
	err := row.Scan(&iv.ID, &iv.ProjectID, &iv.Status, &iv.FullText, &iv.WordCount, &iv.Language)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load interview: %w", err)
	}
	return &iv, nil
}

// ListUncodedCompletedInterviews returns completed interviews that have no
// code links yet. The theory preflight auto-codes these.
func (s *Store) ListUncodedCompletedInterviews(ctx context.Context, projectID uuid.UUID) ([]Interview, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.project_id, i.status, i.full_text, i.word_count, i.language
		FROM interviews i
		WHERE i.project_id = $1 AND i.status = $2
		  AND NOT EXISTS (
			SELECT 1 FROM code_fragment_links l
			JOIN fragments f ON f.id = l.fragment_id
			WHERE f.interview_id = i.id
		  )
		ORDER BY i.id`, projectID, InterviewCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncoded interviews: %w", err)
	}
	defer rows.Close()

	return scanInterviews(rows)
}

// CountInterviews returns total and completed interview counts for a project.
func (s *Store) CountInterviews(ctx context.Context, projectID uuid.UUID) (total, completed int, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2)
		FROM interviews WHERE project_id = $1`, projectID, InterviewCompleted)
	if err := row.Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("failed to count interviews: %w", err)
	}
	return total, completed, nil
}

func scanInterviews(rows pgx.Rows) ([]Interview, error) {
	var out []Interview
	for rows.Next() {
		var iv Interview
		if err := rows.Scan(&iv.ID, &iv.ProjectID, &iv.Status, &iv.FullText, &iv.WordCount, &iv.Language); err != nil {
			return nil, fmt.Errorf("failed to scan interview: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// ListFragments returns all fragments of an interview ordered by offset.
func (s *Store) ListFragments(ctx context.Context, interviewID uuid.UUID) ([]Fragment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, interview_id, text, start_offset, end_offset,
		       paragraph_index, start_ms, end_ms, speaker_id, embedding_synced
		FROM fragments WHERE interview_id = $1
		ORDER BY start_offset`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer rows.Close()

	var out []Fragment
	for rows.Next() {
		var f Fragment
		if err := rows.Scan(&f.ID, &f.InterviewID, &f.Text, &f.StartOffset, &f.EndOffset,
			&f.ParagraphIndex, &f.StartMS, &f.EndMS, &f.SpeakerID, &f.EmbeddingSynced); err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarkFragmentsEmbedded flips embedding_synced for the given fragments only.
// Callers pass exactly the ids whose embeddings actually came back.
func (s *Store) MarkFragmentsEmbedded(ctx context.Context, fragmentIDs []uuid.UUID) error {
	if len(fragmentIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE fragments SET embedding_synced = TRUE WHERE id = ANY($1)`, fragmentIDs)
	if err != nil {
		return fmt.Errorf("failed to mark fragments embedded: %w", err)
	}
	return nil
}

// FragmentInterviewMap resolves fragment ids to their interview ids within a
// project. Unknown ids are simply absent from the result; the judge treats
// them as missing evidence.
func (s *Store) FragmentInterviewMap(ctx context.Context, projectID uuid.UUID, fragmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	if len(fragmentIDs) == 0 {
		return map[uuid.UUID]uuid.UUID{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.interview_id
		FROM fragments f
		JOIN interviews i ON i.id = f.interview_id
		WHERE i.project_id = $1 AND f.id = ANY($2)`, projectID, fragmentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fragment interviews: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]uuid.UUID, len(fragmentIDs))
	for rows.Next() {
		var fragmentID, interviewID uuid.UUID
		if err := rows.Scan(&fragmentID, &interviewID); err != nil {
			return nil, fmt.Errorf("failed to scan fragment mapping: %w", err)
		}
		out[fragmentID] = interviewID
	}
	return out, rows.Err()
}
