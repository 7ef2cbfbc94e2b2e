package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListCategories returns all categories of a project.
func (s *Store) ListCategories(ctx context.Context, projectID uuid.UUID) ([]Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, definition, is_central
		FROM categories WHERE project_id = $1 ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Definition, &c.IsCentral); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BootstrapCategories promotes each distinct code label to a category and
// assigns the code to it. Deterministic and idempotent: existing categories
// are reused by name, codes already categorised are left alone.
func (s *Store) BootstrapCategories(ctx context.Context, projectID uuid.UUID) ([]Category, error) {
	var out []Category
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		// Read through the transaction for a snapshot consistent with the
		// writes below.
		codes, err := listCodes(ctx, tx, projectID)
		if err != nil {
			return err
		}

		for _, code := range codes {
			row := tx.QueryRow(ctx, `
				INSERT INTO categories (id, project_id, name, definition, is_central)
				VALUES ($1, $2, $3, $4, FALSE)
				ON CONFLICT (project_id, name) DO UPDATE SET name = categories.name
				RETURNING id, project_id, name, definition, is_central`,
				uuid.New(), projectID, code.Label, code.Definition)

			var cat Category
			if err := row.Scan(&cat.ID, &cat.ProjectID, &cat.Name, &cat.Definition, &cat.IsCentral); err != nil {
				return fmt.Errorf("failed to bootstrap category %q: %w", code.Label, err)
			}

			if code.CategoryID == nil {
				if _, err := tx.Exec(ctx, `UPDATE codes SET category_id = $1 WHERE id = $2`, cat.ID, code.ID); err != nil {
					return fmt.Errorf("failed to assign code to category: %w", err)
				}
			}
			out = append(out, cat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkCentralCategory flips is_central to the single selected category.
func (s *Store) MarkCentralCategory(ctx context.Context, projectID, categoryID uuid.UUID) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE categories SET is_central = FALSE WHERE project_id = $1`, projectID); err != nil {
			return fmt.Errorf("failed to clear central flags: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE categories SET is_central = TRUE WHERE project_id = $1 AND id = $2`, projectID, categoryID); err != nil {
			return fmt.Errorf("failed to set central category: %w", err)
		}
		return nil
	})
}
