// Package factgraph reads report graphs and fact tags from the neo4j fact
// store. The store holds:
//
//	(:InfoObject {iobject_id, identifier_id, object_type, family, name, created_at})
//	(:InfoObject)-[:HAS_FACT]->(:Fact {fact_id, value_id, term, attribute, value})
//	(:InfoObject)-[:REFERENCES {term}]->(:InfoObject)
//	(:InfoObject)-[:MARKED_BY]->(:Marking {color})
//	(:Fact)-[:TAGGED]->(:Tag {name})
//	(:TagEvent {action, user, comment, at})-[:ON]->(:Tag)
package factgraph

import (
	"context"
	"fmt"

	"github.com/hive-corporation/actionables/internal/config"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

var (
	_ ports.ReportGraph = (*Client)(nil)
	_ ports.FactTags    = (*Client)(nil)
)

// Client is the neo4j backed ports.ReportGraph and ports.FactTags.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	runner   *Runner
	log      *zap.Logger
}

var (
	_ ports.ReportGraph = (*Client)(nil)
	_ ports.FactTags    = (*Client)(nil)
)

// RunnerConfigFrom maps the neo4j config section onto runner settings.
func RunnerConfigFrom(cfg config.Neo4jConfig) RunnerConfig {
	return RunnerConfig{
		EnableCircuitBreaker: cfg.CircuitBreaker,
		MaxFailures:          cfg.MaxFailures,
		CircuitTimeout:       cfg.CircuitTimeout,
		MaxRetries:           cfg.MaxRetries,
		InitialInterval:      cfg.InitialInterval,
		MaxInterval:          cfg.MaxInterval,
	}
}

// Open connects to neo4j and verifies connectivity.
func Open(ctx context.Context, cfg config.Neo4jConfig, log *zap.Logger) (*Client, error) {
	auth := neo4j.BasicAuth(cfg.User, config.Secret(cfg.PasswordEnv), "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("factgraph: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("factgraph: verify connectivity: %w", err)
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		runner:   NewRunner(RunnerConfigFrom(cfg), log),
		log:      log.Named("factgraph"),
	}, nil
}

// Ping checks that the fact store answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

var schemaStatements = []string{
	`CREATE INDEX info_object_id IF NOT EXISTS FOR (n:InfoObject) ON (n.iobject_id)`,
	`CREATE INDEX info_object_identifier IF NOT EXISTS FOR (n:InfoObject) ON (n.identifier_id)`,
	`CREATE INDEX info_object_created IF NOT EXISTS FOR (n:InfoObject) ON (n.created_at)`,
	`CREATE INDEX fact_id IF NOT EXISTS FOR (f:Fact) ON (f.fact_id)`,
	`CREATE CONSTRAINT tag_name_unique IF NOT EXISTS FOR (t:Tag) REQUIRE t.name IS UNIQUE`,
}

// EnsureSchema creates the lookup indexes. Failures are logged only.
func (c *Client) EnsureSchema(ctx context.Context) {
	for _, stmt := range schemaStatements {
		if _, err := c.write(ctx, "schema", stmt, nil); err != nil {
			c.log.Warn("failed to apply fact graph schema statement", zap.String("statement", stmt), zap.Error(err))
		}
	}
}

func (c *Client) read(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return c.query(ctx, op, cypher, params, neo4j.ExecuteQueryWithReadersRouting())
}

func (c *Client) write(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return c.query(ctx, op, cypher, params, neo4j.ExecuteQueryWithWritersRouting())
}

func (c *Client) query(ctx context.Context, op, cypher string, params map[string]any, routing neo4j.ExecuteQueryConfigurationOption) ([]*neo4j.Record, error) {
	var records []*neo4j.Record
	err := c.runner.Do(ctx, op, func(ctx context.Context) error {
		res, err := neo4j.ExecuteQuery(ctx, c.driver, cypher, params, neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(c.database), routing)
		if err != nil {
			return err
		}
		records = res.Records
		return nil
	})
	return records, err
}
