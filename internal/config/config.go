// Package config loads the engine configuration from quarry.yml with
// environment variable overrides, and validates it before any component
// starts.
package config

import "fmt"

// Config is the complete engine configuration.
type Config struct {
	Pool   PoolConfig   `yaml:"pool" mapstructure:"pool"`
	SQL    SQLConfig    `yaml:"sql" mapstructure:"sql"`
	JSON   JSONConfig   `yaml:"json" mapstructure:"json"`
	Vector VectorConfig `yaml:"vector" mapstructure:"vector"`
	Graph  GraphConfig  `yaml:"graph" mapstructure:"graph"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MinConnections      int `yaml:"min_connections" mapstructure:"min_connections"`
	MaxConnections      int `yaml:"max_connections" mapstructure:"max_connections"`
	AcquireTimeoutMs    int `yaml:"acquire_timeout_ms" mapstructure:"acquire_timeout_ms"`
	IdleTimeoutMs       int `yaml:"idle_timeout_ms" mapstructure:"idle_timeout_ms"`
	HealthCheckInterval int `yaml:"health_check_interval_ms" mapstructure:"health_check_interval_ms"`
}

// SQLConfig configures the SQL executor.
type SQLConfig struct {
	TableName             string `yaml:"table_name" mapstructure:"table_name"`
	UsePreparedStatements bool   `yaml:"use_prepared_statements" mapstructure:"use_prepared_statements"`
	TimeoutMs             int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	Debug                 bool   `yaml:"debug" mapstructure:"debug"`
}

// JSONConfig configures the JSON-file executor.
type JSONConfig struct {
	FilePath  string `yaml:"file_path" mapstructure:"file_path"`
	Encoding  string `yaml:"encoding" mapstructure:"encoding"`
	CacheData bool   `yaml:"cache_data" mapstructure:"cache_data"`
}

// VectorConfig configures the vector surface.
type VectorConfig struct {
	Dimensions         int    `yaml:"dimensions" mapstructure:"dimensions"`
	DistanceMetric     string `yaml:"distance_metric" mapstructure:"distance_metric"`
	IndexType          string `yaml:"index_type" mapstructure:"index_type"`
	IVFLists           int    `yaml:"ivf_lists" mapstructure:"ivf_lists"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	EnableVectorIndex  bool   `yaml:"enable_vector_index" mapstructure:"enable_vector_index"`
}

// GraphConfig names the graph store's back-end layout.
type GraphConfig struct {
	Schema           string `yaml:"schema" mapstructure:"schema"`
	NodesTable       string `yaml:"nodes_table" mapstructure:"nodes_table"`
	EdgesTable       string `yaml:"edges_table" mapstructure:"edges_table"`
	DataTable        string `yaml:"data_table" mapstructure:"data_table"`
	ConnectionString string `yaml:"connection_string" mapstructure:"connection_string"`
	PoolSize         int    `yaml:"pool_size" mapstructure:"pool_size"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			MinConnections:      0,
			MaxConnections:      10,
			AcquireTimeoutMs:    5000,
			IdleTimeoutMs:       60000,
			HealthCheckInterval: 30000,
		},
		SQL: SQLConfig{
			TableName: "entities",
			TimeoutMs: 30000,
		},
		JSON: JSONConfig{
			Encoding:  "utf-8",
			CacheData: true,
		},
		Vector: VectorConfig{
			Dimensions:         1536,
			DistanceMetric:     "cosine",
			IndexType:          "ivfflat",
			IVFLists:           100,
			HNSWM:              16,
			HNSWEfConstruction: 64,
			EnableVectorIndex:  true,
		},
		Graph: GraphConfig{
			Schema:     "public",
			NodesTable: "nodes",
			EdgesTable: "edges",
			DataTable:  "data",
			PoolSize:   10,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Pool.MinConnections < 0 || c.Pool.MaxConnections < 0 {
		return fmt.Errorf("config: pool connection counts must be non-negative")
	}
	if c.Pool.MinConnections > c.Pool.MaxConnections {
		return fmt.Errorf("config: pool min_connections (%d) exceeds max_connections (%d)",
			c.Pool.MinConnections, c.Pool.MaxConnections)
	}
	if c.Pool.AcquireTimeoutMs < 0 || c.Pool.IdleTimeoutMs < 0 || c.Pool.HealthCheckInterval < 0 {
		return fmt.Errorf("config: pool timeouts must be non-negative")
	}
	if c.SQL.TimeoutMs < 0 {
		return fmt.Errorf("config: sql timeout_ms must be non-negative")
	}
	if c.Vector.Dimensions < 1 {
		return fmt.Errorf("config: vector dimensions must be positive")
	}
	switch c.Vector.DistanceMetric {
	case "cosine", "euclidean", "inner_product":
	default:
		return fmt.Errorf("config: unknown distance_metric %q", c.Vector.DistanceMetric)
	}
	switch c.Vector.IndexType {
	case "ivfflat", "hnsw":
	default:
		return fmt.Errorf("config: unknown index_type %q", c.Vector.IndexType)
	}
	return nil
}
