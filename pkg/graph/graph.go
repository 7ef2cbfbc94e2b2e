// Package graph is the Neo4j projection adapter.
//
// The graph store is a derived projection of the relational store: every
// write is idempotent (MERGE semantics) and expressed as an UNWIND over a
// row set so one round-trip updates N nodes or edges. Drift against the
// relational store is tolerated and repaired on the next pipeline run.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/axialab/axial/pkg/config"
)

// Graph wraps the Neo4j driver.
type Graph struct {
	driver       neo4j.DriverWithContext
	database     string
	queryTimeout time.Duration
	maxRetries   int
}

// New connects to Neo4j.
func New(ctx context.Context, cfg *config.GraphConfig) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}
	return &Graph{
		driver:       driver,
		database:     cfg.Database,
		queryTimeout: time.Duration(cfg.QueryTimeout) * time.Second,
		maxRetries:   cfg.MaxRetries,
	}, nil
}

// Ping verifies connectivity.
func (g *Graph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// EnsureConstraints creates the uniqueness constraints the projection relies
// on, including the Claim id constraint.
func (g *Graph) EnsureConstraints(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT project_id IF NOT EXISTS FOR (p:Project) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT interview_id IF NOT EXISTS FOR (i:Interview) REQUIRE i.id IS UNIQUE`,
		`CREATE CONSTRAINT fragment_id IF NOT EXISTS FOR (f:Fragment) REQUIRE f.id IS UNIQUE`,
		`CREATE CONSTRAINT code_id IF NOT EXISTS FOR (c:Code) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT category_id IF NOT EXISTS FOR (c:Category) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT claim_id IF NOT EXISTS FOR (c:Claim) REQUIRE c.id IS UNIQUE`,
	}
	for _, stmt := range statements {
		if _, err := g.write(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to ensure constraint: %w", err)
		}
	}
	return nil
}

// DeleteProject removes the whole projection subtree of a project.
func (g *Graph) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	_, err := g.write(ctx, `
		MATCH (p:Project {id: $project_id})
		OPTIONAL MATCH (p)-[*1..2]->(child)
		DETACH DELETE child, p`,
		map[string]any{"project_id": projectID.String()})
	return err
}

// write runs one Cypher statement inside a managed write transaction with the
// configured server-side timeout, retrying transient failures with backoff.
func (g *Graph) write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return g.run(ctx, cypher, params, true)
}

// read is the read-transaction counterpart of write.
func (g *Graph) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return g.run(ctx, cypher, params, false)
}

func (g *Graph) run(ctx context.Context, cypher string, params map[string]any, isWrite bool) ([]*neo4j.Record, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		var records any
		var err error
		if isWrite {
			records, err = session.ExecuteWrite(ctx, work, neo4j.WithTxTimeout(g.queryTimeout))
		} else {
			records, err = session.ExecuteRead(ctx, work, neo4j.WithTxTimeout(g.queryTimeout))
		}
		if err == nil {
			return records.([]*neo4j.Record), nil
		}
		lastErr = err
		if !isTransient(err) || attempt == g.maxRetries {
			return nil, fmt.Errorf("graph query failed: %w", err)
		}

		delay := time.Duration(1<<attempt) * 500 * time.Millisecond
		slog.Warn("transient graph error, retrying",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("graph query failed: %w", lastErr)
}

func isTransient(err error) bool {
	var neo4jErr *neo4j.Neo4jError
	if errors.As(err, &neo4jErr) {
		return strings.HasPrefix(neo4jErr.Code, "Neo.TransientError") ||
			strings.Contains(neo4jErr.Code, "ServiceUnavailable")
	}
	return neo4j.IsConnectivityError(err)
}

// isMissingProcedure detects the absent graph-algorithm extension, which
// degrades metrics to Cypher-only.
func isMissingProcedure(err error) bool {
	var neo4jErr *neo4j.Neo4jError
	if errors.As(err, &neo4jErr) {
		return strings.HasPrefix(neo4jErr.Code, "Neo.ClientError.Procedure")
	}
	return false
}
