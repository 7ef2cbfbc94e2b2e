// Package store is the relational adapter. It is the authoritative store:
// graph and vector stores are projections derived from it.
//
// Each logically independent unit of work opens its own transaction; sessions
// are never shared across concurrent tasks.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/axialab/axial/pkg/config"
)

// ErrNotFound reports a missing entity inside the caller's scope. Cross-tenant
// rows are indistinguishable from missing rows by design.
var ErrNotFound = errors.New("not found")

// Store wraps the connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTx runs fn inside a transaction, committing on nil error.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// scopeClause renders the tenancy predicate for reads against a table that
// has project-level ownership. Admins see the whole tenant; everyone else is
// pinned to their own projects.
func scopeClause(scope Scope, args []interface{}) (string, []interface{}) {
	if scope.Admin {
		args = append(args, scope.TenantID)
		return fmt.Sprintf("p.tenant_id = $%d", len(args)), args
	}
	args = append(args, scope.OwnerID)
	return fmt.Sprintf("p.owner_id = $%d", len(args)), args
}

// GetProject loads a project inside scope.
func (s *Store) GetProject(ctx context.Context, projectID uuid.UUID, scope Scope) (*Project, error) {
	args := []interface{}{projectID}
	clause, args := scopeClause(scope, args)

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT p.id, p.tenant_id, p.owner_id, p.domain_template, p.language, p.created_at
		FROM projects p
		WHERE p.id = $1 AND %s`, clause), args...)

	var p Project
	err := row.Scan(&p.ID, &p.TenantID, &p.OwnerID, &p.DomainTemplate, &p.Language, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &p, nil
}

// DeleteProject cascades over all child tables under the project id, in
// dependency order. Graph and vector projections are cleaned by the caller.
func (s *Store) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		statements := []string{
			`DELETE FROM code_fragment_links WHERE code_id IN (SELECT id FROM codes WHERE project_id = $1)`,
			`DELETE FROM fragments WHERE interview_id IN (SELECT id FROM interviews WHERE project_id = $1)`,
			`DELETE FROM codes WHERE project_id = $1`,
			`DELETE FROM categories WHERE project_id = $1`,
			`DELETE FROM theories WHERE project_id = $1`,
			`DELETE FROM interviews WHERE project_id = $1`,
			`DELETE FROM projects WHERE id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, projectID); err != nil {
				return fmt.Errorf("cascade delete failed: %w", err)
			}
		}
		return nil
	})
}
