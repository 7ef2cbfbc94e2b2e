package config

import "fmt"

// TaskConfig carries the background-task orchestrator settings.
type TaskConfig struct {
	// TTLSeconds is how long completed task records remain readable.
	TTLSeconds int `yaml:"ttl_seconds,omitempty" json:"ttl_seconds,omitempty"`

	// LockTTLSeconds is the per-project lock lifetime. Holders refresh the
	// lock from the step hook; expiry lets a later run supersede a stuck one.
	LockTTLSeconds int `yaml:"lock_ttl_seconds,omitempty" json:"lock_ttl_seconds,omitempty"`

	// UseExternalQueue dispatches pipeline runs to a broker-backed worker
	// (Redis stream) instead of an in-process goroutine.
	UseExternalQueue *bool `yaml:"use_external_queue,omitempty" json:"use_external_queue,omitempty"`

	// QueueStream is the Redis stream name for external dispatch.
	QueueStream string `yaml:"queue_stream,omitempty" json:"queue_stream,omitempty"`

	// NextPollSeconds is the server-suggested polling backoff.
	NextPollSeconds int `yaml:"next_poll_seconds,omitempty" json:"next_poll_seconds,omitempty"`
}

// SetDefaults applies default values.
func (c *TaskConfig) SetDefaults() {
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 3600
	}
	if c.LockTTLSeconds == 0 {
		c.LockTTLSeconds = 600
	}
	if c.UseExternalQueue == nil {
		c.UseExternalQueue = BoolPtr(false)
	}
	if c.QueueStream == "" {
		c.QueueStream = "axial:pipeline"
	}
	if c.NextPollSeconds == 0 {
		c.NextPollSeconds = 2
	}
}

// Validate checks the task configuration.
func (c *TaskConfig) Validate() error {
	if c.TTLSeconds < 1 {
		return fmt.Errorf("task.ttl_seconds must be positive")
	}
	if c.LockTTLSeconds < 1 {
		return fmt.Errorf("task.lock_ttl_seconds must be positive")
	}
	return nil
}

// ServerConfig carries the HTTP server settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the listen port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// ReadTimeout in seconds.
	ReadTimeout int `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`

	// WriteTimeout in seconds.
	WriteTimeout int `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// HealthDependencies lists the stores pinged by the health endpoint.
	// Recognised values: relational, graph, vector, redis.
	HealthDependencies []string `yaml:"health_dependencies,omitempty" json:"health_dependencies,omitempty"`

	// TenantAdminRoles are the role names that bypass owner scoping.
	TenantAdminRoles []string `yaml:"tenant_admin_roles,omitempty" json:"tenant_admin_roles,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60
	}
	if c.HealthDependencies == nil {
		c.HealthDependencies = []string{"relational"}
	}
	if c.TenantAdminRoles == nil {
		c.TenantAdminRoles = []string{"tenant_admin", "platform_admin"}
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Port)
	}
	for _, dep := range c.HealthDependencies {
		switch dep {
		case "relational", "graph", "vector", "redis":
		default:
			return fmt.Errorf("unknown server.health_dependencies entry %q", dep)
		}
	}
	return nil
}
