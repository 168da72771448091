package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads quarry.yml from the given path (or the working directory
// when empty), applies QUARRY_* environment overrides on top of the
// defaults, and validates the result. A missing config file is not an
// error: defaults plus environment win.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("quarry")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("QUARRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers the default tree so viper can overlay file and
// environment values field by field.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("pool.min_connections", cfg.Pool.MinConnections)
	v.SetDefault("pool.max_connections", cfg.Pool.MaxConnections)
	v.SetDefault("pool.acquire_timeout_ms", cfg.Pool.AcquireTimeoutMs)
	v.SetDefault("pool.idle_timeout_ms", cfg.Pool.IdleTimeoutMs)
	v.SetDefault("pool.health_check_interval_ms", cfg.Pool.HealthCheckInterval)
	v.SetDefault("sql.table_name", cfg.SQL.TableName)
	v.SetDefault("sql.use_prepared_statements", cfg.SQL.UsePreparedStatements)
	v.SetDefault("sql.timeout_ms", cfg.SQL.TimeoutMs)
	v.SetDefault("sql.debug", cfg.SQL.Debug)
	v.SetDefault("json.file_path", cfg.JSON.FilePath)
	v.SetDefault("json.encoding", cfg.JSON.Encoding)
	v.SetDefault("json.cache_data", cfg.JSON.CacheData)
	v.SetDefault("vector.dimensions", cfg.Vector.Dimensions)
	v.SetDefault("vector.distance_metric", cfg.Vector.DistanceMetric)
	v.SetDefault("vector.index_type", cfg.Vector.IndexType)
	v.SetDefault("vector.ivf_lists", cfg.Vector.IVFLists)
	v.SetDefault("vector.hnsw_m", cfg.Vector.HNSWM)
	v.SetDefault("vector.hnsw_ef_construction", cfg.Vector.HNSWEfConstruction)
	v.SetDefault("vector.enable_vector_index", cfg.Vector.EnableVectorIndex)
	v.SetDefault("graph.schema", cfg.Graph.Schema)
	v.SetDefault("graph.nodes_table", cfg.Graph.NodesTable)
	v.SetDefault("graph.edges_table", cfg.Graph.EdgesTable)
	v.SetDefault("graph.data_table", cfg.Graph.DataTable)
	v.SetDefault("graph.connection_string", cfg.Graph.ConnectionString)
	v.SetDefault("graph.pool_size", cfg.Graph.PoolSize)
}
