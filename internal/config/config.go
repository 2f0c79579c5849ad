package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProtocolNative   = "native"
	ProtocolHTTP     = "http"
	ProtocolPostgres = "postgres"
	// ProtocolHTTPRaw talks to the HTTP interface without clickhouse-go,
	// choosing the response format per statement.
	ProtocolHTTPRaw = "http-raw"

	defaultDatabase          = "default"
	defaultMigrationsTable   = "schema_migrations"
	defaultMetadataTable     = "ar_internal_metadata"
	defaultMigrationsPath    = "db/migrate"
	defaultDistributedSuffix = "distributed"
	defaultEnvironment       = "development"
)

type DatabaseConfig struct {
	Protocol    string `yaml:"protocol"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	HTTPPort    int    `yaml:"http_port"`
	Database    string `yaml:"database"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Secure      bool   `yaml:"secure"`
	Cluster     string `yaml:"cluster"`
	DialTimeout string `yaml:"dial_timeout"`
	ReadTimeout string `yaml:"read_timeout"`
	Retries     int    `yaml:"retries"`
}

type MigrationsConfig struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

type MetadataConfig struct {
	Table             string `yaml:"table"`
	Disabled          bool   `yaml:"disabled"`
	Distributed       bool   `yaml:"distributed_service_tables"`
	DistributedSuffix string `yaml:"distributed_service_tables_suffix"`
}

type Config struct {
	Environment string           `yaml:"environment"`
	Database    DatabaseConfig   `yaml:"database"`
	Migrations  MigrationsConfig `yaml:"migrations"`
	Metadata    MetadataConfig   `yaml:"metadata"`
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills every unset field with its documented default.
func (c *Config) ApplyDefaults() {
	if strings.EqualFold(strings.TrimSpace(c.Database.Protocol), "https") {
		c.Database.Secure = true
	}
	c.Database.Protocol = normalizeProtocol(c.Database.Protocol)

	if strings.TrimSpace(c.Database.Host) == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = defaultPort(c.Database.Protocol, c.Database.Secure)
	}
	if c.Database.HTTPPort == 0 {
		if c.Database.Protocol == ProtocolHTTP || c.Database.Protocol == ProtocolHTTPRaw {
			c.Database.HTTPPort = c.Database.Port
		} else {
			c.Database.HTTPPort = defaultPort(ProtocolHTTP, c.Database.Secure)
		}
	}
	if strings.TrimSpace(c.Database.Database) == "" {
		c.Database.Database = defaultDatabase
	}
	if c.Database.Username == "" {
		c.Database.Username = "default"
	}
	if c.Migrations.Path == "" {
		c.Migrations.Path = defaultMigrationsPath
	}
	if c.Migrations.Table == "" {
		c.Migrations.Table = defaultMigrationsTable
	}
	if c.Metadata.Table == "" {
		c.Metadata.Table = defaultMetadataTable
	}
	if c.Metadata.DistributedSuffix == "" {
		c.Metadata.DistributedSuffix = defaultDistributedSuffix
	}
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
}

func (c *Config) Validate() error {
	switch c.Database.Protocol {
	case ProtocolNative, ProtocolHTTP, ProtocolHTTPRaw, ProtocolPostgres:
	default:
		return fmt.Errorf("unsupported protocol: %s", c.Database.Protocol)
	}

	if c.Metadata.Distributed && c.Database.Cluster == "" {
		return fmt.Errorf("distributed service tables require database.cluster")
	}

	if _, err := c.DialTimeout(); err != nil {
		return fmt.Errorf("invalid dial_timeout: %w", err)
	}
	if _, err := c.ReadTimeout(); err != nil {
		return fmt.Errorf("invalid read_timeout: %w", err)
	}

	return nil
}

// AdminConfig returns a copy of the config aimed at the server's default
// database, used for CREATE/DROP DATABASE.
func (c *Config) AdminConfig() *Config {
	admin := *c
	admin.Database.Database = defaultDatabase
	return &admin
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port))
}

func (c *Config) DialTimeout() (time.Duration, error) {
	return parseDuration(c.Database.DialTimeout, 10*time.Second)
}

func (c *Config) ReadTimeout() (time.Duration, error) {
	return parseDuration(c.Database.ReadTimeout, 5*time.Minute)
}

// GetConnectionString builds the DSN for ClickHouse's PostgreSQL wire interface.
func (c *Config) GetConnectionString() string {
	sslMode := "disable"
	if c.Database.Secure {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.Username,
		c.Database.Password,
		c.Database.Database,
		sslMode,
	)
}

// GetHTTPURL returns the base URL of the ClickHouse HTTP interface, which
// listens on http_port whatever the main protocol is.
func (c *Config) GetHTTPURL() string {
	scheme := "http"
	if c.Database.Secure {
		scheme = "https"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.HTTPPort)),
		Path:   "/",
	}
	return u.String()
}

func normalizeProtocol(protocol string) string {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "", "native", "tcp":
		return ProtocolNative
	case "http", "https":
		return ProtocolHTTP
	case "http-raw", "raw":
		return ProtocolHTTPRaw
	case "postgres", "postgresql", "pg":
		return ProtocolPostgres
	default:
		return protocol
	}
}

func defaultPort(protocol string, secure bool) int {
	switch protocol {
	case ProtocolHTTP, ProtocolHTTPRaw:
		if secure {
			return 8443
		}
		return 8123
	case ProtocolPostgres:
		return 9005
	default:
		if secure {
			return 9440
		}
		return 9000
	}
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
