// Package graphstore implements a property-graph and vector store over a
// PostgreSQL back-end. Nodes and edges live in relational tables with
// JSONB property columns; traversal, shortest path and connected-set
// queries execute as bounded recursive CTEs inside the database, followed
// by a single batched node fetch.
//
// Every user-supplied data value reaches the back-end as a bound $N
// parameter. The only textually composed fragments are identifier-checked
// schema/table/column names, the direction keyword from a closed set, and
// integer depths validated into [0, AbsoluteMaxDepth].
package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quarrydb/quarry/internal/pool"
	"github.com/quarrydb/quarry/internal/sqlgen"
)

// DB is the database surface the store runs on. Both *pgxpool.Pool and
// *pgx.Conn satisfy it, as does any pooled lease.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Node is a property-graph node, unique by ID.
type Node struct {
	ID         string
	Type       string
	Properties map[string]any
}

// Edge is a directed, typed connection between two nodes. Edge identity is
// (From, To, Type).
type Edge struct {
	Type       string
	From       string
	To         string
	Properties map[string]any
}

// DistanceMetric selects the vector similarity operator.
type DistanceMetric string

const (
	MetricCosine       DistanceMetric = "cosine"
	MetricEuclidean    DistanceMetric = "euclidean"
	MetricInnerProduct DistanceMetric = "inner_product"
)

// VectorIndexType selects the ANN index implementation.
type VectorIndexType string

const (
	IndexIVFFlat VectorIndexType = "ivfflat"
	IndexHNSW    VectorIndexType = "hnsw"
)

// VectorConfig tunes the vector surface.
type VectorConfig struct {
	Dimensions         int
	DistanceMetric     DistanceMetric
	IndexType          VectorIndexType
	IVFLists           int
	HNSWM              int
	HNSWEfConstruction int
	EnableIndex        bool
}

// Config names the tables the store operates on. Table and schema names
// are identifier-checked at construction and never user-parameterizable.
type Config struct {
	Schema          string
	NodesTable      string
	EdgesTable      string
	DataTable       string
	SchemaDefsTable string
	Vector          VectorConfig
}

// DefaultConfig returns the conventional table layout.
func DefaultConfig() Config {
	return Config{
		Schema:          "public",
		NodesTable:      "nodes",
		EdgesTable:      "edges",
		DataTable:       "data",
		SchemaDefsTable: "schema_definitions",
		Vector: VectorConfig{
			Dimensions:         1536,
			DistanceMetric:     MetricCosine,
			IndexType:          IndexIVFFlat,
			IVFLists:           100,
			HNSWM:              16,
			HNSWEfConstruction: 64,
			EnableIndex:        true,
		},
	}
}

// Store is the graph + vector store. It runs either on a fixed DB handle
// or on a generic connection pool; with a pool, every operation holds a
// lease only for its own duration and releases it on all exit paths.
type Store struct {
	db   DB
	pool *pool.Pool[DB]
	cfg  Config
}

// New builds a store on a fixed database handle.
func New(db DB, cfg Config) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("graphstore: db is required")
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &Store{db: db, cfg: cfg}, nil
}

// NewWithPool builds a store that leases a connection from p per
// operation.
func NewWithPool(p *pool.Pool[DB], cfg Config) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("graphstore: pool is required")
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &Store{pool: p, cfg: cfg}, nil
}

func validateConfig(cfg *Config) error {
	def := DefaultConfig()
	if cfg.Schema == "" {
		cfg.Schema = def.Schema
	}
	if cfg.NodesTable == "" {
		cfg.NodesTable = def.NodesTable
	}
	if cfg.EdgesTable == "" {
		cfg.EdgesTable = def.EdgesTable
	}
	if cfg.DataTable == "" {
		cfg.DataTable = def.DataTable
	}
	if cfg.SchemaDefsTable == "" {
		cfg.SchemaDefsTable = def.SchemaDefsTable
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = def.Vector.Dimensions
	}
	if cfg.Vector.DistanceMetric == "" {
		cfg.Vector.DistanceMetric = def.Vector.DistanceMetric
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = def.Vector.IndexType
	}
	if cfg.Vector.IVFLists == 0 {
		cfg.Vector.IVFLists = def.Vector.IVFLists
	}
	if cfg.Vector.HNSWM == 0 {
		cfg.Vector.HNSWM = def.Vector.HNSWM
	}
	if cfg.Vector.HNSWEfConstruction == 0 {
		cfg.Vector.HNSWEfConstruction = def.Vector.HNSWEfConstruction
	}
	for _, ident := range []string{cfg.Schema, cfg.NodesTable, cfg.EdgesTable, cfg.DataTable, cfg.SchemaDefsTable} {
		if !sqlgen.ValidIdentifier(ident) {
			return fmt.Errorf("graphstore: invalid identifier %q", ident)
		}
	}
	if cfg.Vector.Dimensions < 1 {
		return fmt.Errorf("graphstore: vector dimensions must be positive")
	}
	switch cfg.Vector.DistanceMetric {
	case MetricCosine, MetricEuclidean, MetricInnerProduct:
	default:
		return fmt.Errorf("graphstore: unknown distance metric %q", cfg.Vector.DistanceMetric)
	}
	switch cfg.Vector.IndexType {
	case IndexIVFFlat, IndexHNSW:
	default:
		return fmt.Errorf("graphstore: unknown vector index type %q", cfg.Vector.IndexType)
	}
	return nil
}

// conn returns the DB to run on and a release function. With a fixed
// handle the release is a no-op.
func (s *Store) conn(ctx context.Context) (DB, func(), error) {
	if s.pool != nil {
		db, err := s.pool.Acquire(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("graphstore: acquire connection: %w", err)
		}
		return db, func() { s.pool.Release(db) }, nil
	}
	return s.db, func() {}, nil
}

func (s *Store) nodesTable() string {
	return s.cfg.Schema + "." + s.cfg.NodesTable
}

func (s *Store) edgesTable() string {
	return s.cfg.Schema + "." + s.cfg.EdgesTable
}

func (s *Store) dataTable() string {
	return s.cfg.Schema + "." + s.cfg.DataTable
}

func (s *Store) schemaDefsTable() string {
	return s.cfg.Schema + "." + s.cfg.SchemaDefsTable
}

// Migrate creates the graph tables if they do not exist. Edges cascade on
// node deletion.
func (s *Store) Migrate(ctx context.Context) error {
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL,
    properties JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS %[2]s (
    from_node  TEXT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
    to_node    TEXT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
    type       TEXT NOT NULL,
    properties JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (from_node, to_node, type)
);
CREATE INDEX IF NOT EXISTS idx_%[3]s_type ON %[1]s(type);
CREATE INDEX IF NOT EXISTS idx_%[4]s_to_node ON %[2]s(to_node);
CREATE TABLE IF NOT EXISTS %[5]s (
    key   TEXT PRIMARY KEY,
    value JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS %[6]s (
    table_name        TEXT PRIMARY KEY,
    schema_definition JSONB NOT NULL
);`,
		s.nodesTable(), s.edgesTable(), s.cfg.NodesTable, s.cfg.EdgesTable,
		s.dataTable(), s.schemaDefsTable())

	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("graphstore: migrate: %w", err)
	}
	return nil
}

// PutValue upserts a key in the KV data table.
func (s *Store) PutValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("graphstore: marshal value for %q: %w", key, err)
	}
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, s.dataTable())
	if _, err := db.Exec(ctx, sql, key, raw); err != nil {
		return fmt.Errorf("graphstore: put value %q: %w", key, err)
	}
	return nil
}

// GetValue reads a key from the KV data table into dest. It returns
// (false, nil) when the key does not exist.
func (s *Store) GetValue(ctx context.Context, key string, dest any) (bool, error) {
	db, release, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	var raw []byte
	sql := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, s.dataTable())
	if err := db.QueryRow(ctx, sql, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("graphstore: get value %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("graphstore: unmarshal value %q: %w", key, err)
	}
	return true, nil
}

// DeleteValue removes a key from the KV data table. Deleting a missing
// key is not an error.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.dataTable())
	if _, err := db.Exec(ctx, sql, key); err != nil {
		return fmt.Errorf("graphstore: delete value %q: %w", key, err)
	}
	return nil
}

// DefineSchema stores a table's schema definition document.
func (s *Store) DefineSchema(ctx context.Context, tableName string, definition map[string]any) error {
	raw, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("graphstore: marshal schema for %q: %w", tableName, err)
	}
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	sql := fmt.Sprintf(`INSERT INTO %s (table_name, schema_definition) VALUES ($1, $2)
		ON CONFLICT (table_name) DO UPDATE SET schema_definition = EXCLUDED.schema_definition`,
		s.schemaDefsTable())
	if _, err := db.Exec(ctx, sql, tableName, raw); err != nil {
		return fmt.Errorf("graphstore: define schema %q: %w", tableName, err)
	}
	return nil
}

// GetSchema loads a stored schema definition, or nil when absent.
func (s *Store) GetSchema(ctx context.Context, tableName string) (map[string]any, error) {
	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var raw []byte
	sql := fmt.Sprintf(`SELECT schema_definition FROM %s WHERE table_name = $1`, s.schemaDefsTable())
	if err := db.QueryRow(ctx, sql, tableName).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("graphstore: get schema %q: %w", tableName, err)
	}
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("graphstore: unmarshal schema %q: %w", tableName, err)
	}
	return def, nil
}

// marshalProps serialises a property bag, mapping nil to the empty object
// so JSONB columns never hold SQL NULL.
func marshalProps(props map[string]any) ([]byte, error) {
	if props == nil {
		props = map[string]any{}
	}
	return json.Marshal(props)
}
