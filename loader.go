package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jLoader loads an annotated build graph into a Neo4j database using
// batch UNWIND queries.
type Neo4jLoader struct {
	driver neo4j.DriverWithContext
	ctx    context.Context
	logger *slog.Logger
	clean  bool
}

// NewNeo4jLoader connects to Neo4j and returns a ready-to-use loader. When
// clean is set, previously loaded crates are removed before each load.
func NewNeo4jLoader(ctx context.Context, uri, user, password string, clean bool, logger *slog.Logger) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", uri, err)
	}
	return &Neo4jLoader{driver: driver, ctx: ctx, logger: logger, clean: clean}, nil
}

// Close releases the underlying Neo4j driver resources.
func (l *Neo4jLoader) Close() {
	l.driver.Close(l.ctx)
}

// runCypher runs a single Cypher statement with optional parameters.
func (l *Neo4jLoader) runCypher(cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(l.ctx, l.driver, cypher, params, neo4j.EagerResultTransformer)
	return err
}

// CleanGraph removes all previously loaded crates and dependency relationships.
func (l *Neo4jLoader) CleanGraph() error {
	l.logger.Info("cleaning existing build graph data")
	queries := []string{
		"MATCH ()-[r:DEPENDS_ON]->() DELETE r",
		"MATCH (n:Crate) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := l.runCypher(q, nil); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndexes ensures the required Neo4j indexes exist.
func (l *Neo4jLoader) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX crate_id IF NOT EXISTS FOR (n:Crate) ON (n.id)",
		"CREATE INDEX crate_name IF NOT EXISTS FOR (n:Crate) ON (n.name)",
	}
	for _, q := range indexes {
		if err := l.runCypher(q, nil); err != nil {
			return err
		}
	}
	return nil
}

// LoadGraph upserts every crate and dependency edge of the graph.
func (l *Neo4jLoader) LoadGraph(graph *BuildGraph) error {
	if l.clean {
		if err := l.CleanGraph(); err != nil {
			return err
		}
	}
	if err := l.CreateIndexes(); err != nil {
		return err
	}
	if err := l.LoadCrates(graph); err != nil {
		return err
	}
	return l.LoadEdges(graph)
}

// LoadCrates upserts Crate nodes with their timing and critical path rank.
func (l *Neo4jLoader) LoadCrates(graph *BuildGraph) error {
	batch := crateRows(graph)
	l.logger.Info("loading crates", "count", len(batch))
	return l.runCypher(
		`UNWIND $batch AS row
		 MERGE (n:Crate {id: row.id})
		 SET n.name = row.name, n.version = row.version,
		     n.is_workspace_member = row.member, n.duration_ms = row.duration_ms,
		     n.start_ms = row.start_ms, n.fresh = row.fresh, n.features = row.features,
		     n.on_critical_path = row.critical_rank > 0, n.critical_rank = row.critical_rank`,
		map[string]any{"batch": batch},
	)
}

// LoadEdges upserts DEPENDS_ON relationships between Crate nodes.
func (l *Neo4jLoader) LoadEdges(graph *BuildGraph) error {
	batch := edgeRows(graph)
	l.logger.Info("loading dependency edges", "count", len(batch))
	return l.runCypher(
		`UNWIND $batch AS row
		 MATCH (from:Crate {id: row.from}), (to:Crate {id: row.to})
		 MERGE (from)-[r:DEPENDS_ON]->(to)
		 SET r.dep_kinds = row.kinds, r.critical = row.critical`,
		map[string]any{"batch": batch},
	)
}

// crateRows builds the UNWIND batch for LoadCrates. critical_rank is the
// 1-based position on the critical path, 0 when off the path.
func crateRows(graph *BuildGraph) []map[string]any {
	rank := make(map[CrateID]int, len(graph.CriticalPath))
	for i, id := range graph.CriticalPath {
		rank[id] = i + 1
	}

	batch := make([]map[string]any, 0, len(graph.Nodes))
	for _, id := range graph.SortedIDs() {
		n := graph.Nodes[id]
		row := map[string]any{
			"id": string(n.ID), "name": n.Name, "version": n.Version,
			"member": n.IsWorkspaceMember, "fresh": n.Fresh,
			"features": n.Features, "critical_rank": rank[id],
			"duration_ms": nil, "start_ms": nil,
		}
		if n.DurationMs != nil {
			row["duration_ms"] = *n.DurationMs
		}
		if n.StartMs != nil {
			row["start_ms"] = *n.StartMs
		}
		batch = append(batch, row)
	}
	return batch
}

// edgeRows builds the UNWIND batch for LoadEdges. An edge is critical when
// its dependency directly precedes its dependent on the critical path.
func edgeRows(graph *BuildGraph) []map[string]any {
	critical := make(map[[2]CrateID]bool, len(graph.CriticalPath))
	for i := 1; i < len(graph.CriticalPath); i++ {
		critical[[2]CrateID{graph.CriticalPath[i], graph.CriticalPath[i-1]}] = true
	}

	batch := make([]map[string]any, 0, len(graph.Edges))
	for _, e := range graph.Edges {
		batch = append(batch, map[string]any{
			"from":     string(e.From),
			"to":       string(e.To),
			"kinds":    e.DepKinds,
			"critical": critical[[2]CrateID{e.From, e.To}],
		})
	}
	return batch
}
