package config

import "fmt"

// DatabaseConfig holds the PostgreSQL connection settings.
//
// The relational store is the authoritative store; graph and vector stores
// are derived projections.
type DatabaseConfig struct {
	// Host is the database server hostname.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the database server port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Database is the database name.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// Username for database authentication.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`

	// Password for database authentication.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// SSLMode for the connection (disable, require, verify-full, ...).
	SSLMode string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`

	// MaxConns is the maximum pool size.
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty"`
}

// DSN builds a pgx connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// SetDefaults applies default values.
func (c *DatabaseConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.Database == "" {
		c.Database = "axial"
	}
	if c.Username == "" {
		c.Username = "axial"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("database.port %d out of range", c.Port)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be positive")
	}
	return nil
}

// GraphConfig holds the Neo4j connection settings.
type GraphConfig struct {
	// URI is the bolt/neo4j connection URI.
	URI string `yaml:"uri,omitempty" json:"uri,omitempty"`

	// Username for graph authentication.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`

	// Password for graph authentication.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// Database is the target database name.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// QueryTimeout is the server-side query timeout in seconds.
	QueryTimeout int `yaml:"query_timeout,omitempty" json:"query_timeout,omitempty"`

	// MaxRetries is the retry budget for transient write failures.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SetDefaults applies default values.
func (c *GraphConfig) SetDefaults() {
	if c.URI == "" {
		c.URI = "bolt://localhost:7687"
	}
	if c.Username == "" {
		c.Username = "neo4j"
	}
	if c.Database == "" {
		c.Database = "neo4j"
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the graph configuration.
func (c *GraphConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("graph.uri is required")
	}
	if c.QueryTimeout < 1 {
		return fmt.Errorf("graph.query_timeout must be positive")
	}
	return nil
}

// VectorConfig holds the Qdrant connection settings.
type VectorConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the Qdrant gRPC port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// APIKey authenticates against Qdrant cloud.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// EnableTLS enables TLS for the connection.
	EnableTLS *bool `yaml:"enable_tls,omitempty" json:"enable_tls,omitempty"`

	// MaxRetries is the retry budget for transient search failures.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.EnableTLS == nil {
		c.EnableTLS = BoolPtr(false)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the vector configuration.
func (c *VectorConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("vector.host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("vector.port %d out of range", c.Port)
	}
	return nil
}

// RedisConfig holds Redis settings for task mirroring, locking, dispatch
// and rate limiting. When Addr is empty all Redis-backed features fall back
// to their in-process implementations (single replica only).
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Empty disables Redis.
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`

	// Password authenticates against the server.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB selects the logical database.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`
}

// Enabled reports whether Redis is configured.
func (c *RedisConfig) Enabled() bool {
	return c != nil && c.Addr != ""
}

// SetDefaults applies default values.
func (c *RedisConfig) SetDefaults() {}

// Validate checks the Redis configuration.
func (c *RedisConfig) Validate() error {
	if c.DB < 0 {
		return fmt.Errorf("redis.db must not be negative")
	}
	return nil
}
