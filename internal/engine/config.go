package engine

import "time"

// Endpoint is one reachable engine deployment.
type Endpoint struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Country string `yaml:"country"`
	Token   string `yaml:"token"`
}

// Remote locates the precomputed impacts table on a data host.
type Remote struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Path       string `yaml:"path"`
	KeyPath    string `yaml:"key_path"`
	KnownHosts string `yaml:"known_hosts"`
	SHA256     string `yaml:"sha256"`
}

// Config is the application configuration.
type Config struct {
	Engine struct {
		Default           string     `yaml:"default"`
		Endpoints         []Endpoint `yaml:"endpoints"`
		TimeoutSeconds    int        `yaml:"timeout_seconds"`
		Retries           int        `yaml:"retries"`
		RequestsPerSecond float64    `yaml:"requests_per_second"`
		MaxAxisCount      int        `yaml:"max_axis_count"`
		Concurrency       int        `yaml:"concurrency"`
	} `yaml:"engine"`
	Server struct {
		Addr                string `yaml:"addr"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
		Token               string `yaml:"token"`
		TLSCert             string `yaml:"tls_cert"`
		TLSKey              string `yaml:"tls_key"`
		ClientCA            string `yaml:"client_ca"`
		RequireMTLS         bool   `yaml:"require_mtls"`
	} `yaml:"server"`
	Defaults struct {
		Year     int    `yaml:"year"`
		Baseline string `yaml:"baseline"`
	} `yaml:"defaults"`
	Cache struct {
		Enabled  bool   `yaml:"enabled"`
		Path     string `yaml:"path"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"cache"`
	Impacts struct {
		CSV    string `yaml:"csv"`
		Remote Remote `yaml:"remote"`
	} `yaml:"impacts"`
	Telemetry struct {
		Enabled         bool `yaml:"enabled"`
		MetricsInterval int  `yaml:"metrics_interval"`
	} `yaml:"telemetry"`
}

// DefaultEngineURL is the hosted PolicyEngine API.
const DefaultEngineURL = "https://api.policyengine.org"

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if len(c.Engine.Endpoints) == 0 {
		c.Engine.Endpoints = []Endpoint{{Name: "policyengine", URL: DefaultEngineURL}}
	}
	for i := range c.Engine.Endpoints {
		if c.Engine.Endpoints[i].Country == "" {
			c.Engine.Endpoints[i].Country = "us"
		}
	}
	if c.Engine.Default == "" {
		c.Engine.Default = c.Engine.Endpoints[0].Name
	}
	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = 120
	}
	if c.Engine.Retries < 0 {
		c.Engine.Retries = 0
	}
	if c.Engine.MaxAxisCount <= 0 {
		c.Engine.MaxAxisCount = 401
	}
	if c.Engine.Concurrency <= 0 {
		c.Engine.Concurrency = 4
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 300
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24
	}
	if c.Impacts.Remote.Port == 0 {
		c.Impacts.Remote.Port = 22
	}
}

// Timeout is the per-request engine timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// RetryConfig derives retry behavior from the configured retry count.
func (c Config) RetryConfig() RetryConfig {
	rc := DefaultRetryConfig()
	rc.MaxRetries = c.Engine.Retries
	return rc
}
