package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Solr     SolrConfig     `mapstructure:"solr"`
	Exporter ExporterConfig `mapstructure:"exporter"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SolrConfig struct {
	Timeout time.Duration    `mapstructure:"timeout"`
	Cores   []SolrCoreConfig `mapstructure:"cores"`
}

// SolrCoreConfig describes one logical core: its leader update URL and,
// when manual replication is enabled, the followers to trigger after a
// commit. When ManualReplication is true, pollInterval must be disabled
// on the followers; that precondition is external and not enforced here.
type SolrCoreConfig struct {
	Name               string   `mapstructure:"name"`
	URL                string   `mapstructure:"url"`
	ManualReplication  bool     `mapstructure:"manual_replication"`
	ReplicationHandler string   `mapstructure:"replication_handler"`
	FollowerURLs       []string `mapstructure:"follower_urls"`
}

// Core looks up a core config by name.
func (c *SolrConfig) Core(name string) (SolrCoreConfig, bool) {
	for _, core := range c.Cores {
		if core.Name == name {
			return core, true
		}
	}
	return SolrCoreConfig{}, false
}

type ExporterConfig struct {
	// Slots caps concurrent chunk/job execution against the source
	// database; the upstream connection ceiling per credential is 4.
	Slots int `mapstructure:"slots"`

	// MaxRecChunks / MaxDelChunks carry the raw "Type:Size,Type:Size"
	// override strings from EXPORTER_MAX_RC_CONFIG / EXPORTER_MAX_DC_CONFIG.
	MaxRecChunks string `mapstructure:"max_rec_chunks"`
	MaxDelChunks string `mapstructure:"max_del_chunks"`

	EmailOnError      bool     `mapstructure:"email_on_error"`
	EmailOnWarning    bool     `mapstructure:"email_on_warning"`
	AdminEmails       []string `mapstructure:"admin_emails"`
	AutomatedUsername string   `mapstructure:"automated_username"`

	// SourceTimeout bounds each source-database call made while running a
	// chunk; zero disables the guard.
	SourceTimeout time.Duration `mapstructure:"source_timeout"`

	// Replication-trigger retry policy for followers that reject the
	// fetchindex command.
	ReplicationRetries int           `mapstructure:"replication_retries"`
	ReplicationBackoff time.Duration `mapstructure:"replication_backoff"`

	// CoreMap assigns each export type the Solr core it loads into.
	CoreMap map[string]string `mapstructure:"core_map"`
}

// RecChunkOverrides parses the EXPORTER_MAX_RC_CONFIG override string.
func (c *ExporterConfig) RecChunkOverrides() (map[string]int, error) {
	return parseChunkOverrides(c.MaxRecChunks)
}

// DelChunkOverrides parses the EXPORTER_MAX_DC_CONFIG override string.
func (c *ExporterConfig) DelChunkOverrides() (map[string]int, error) {
	return parseChunkOverrides(c.MaxDelChunks)
}

// parseChunkOverrides parses a "Type:Size,Type:Size" string into a map.
// An empty string yields an empty map.
func parseChunkOverrides(s string) (map[string]int, error) {
	overrides := map[string]int{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, sizeStr, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("chunk override %q: expected Type:Size", item)
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeStr))
		if err != nil || size < 1 {
			return nil, fmt.Errorf("chunk override %q: size must be a positive integer", item)
		}
		overrides[strings.TrimSpace(name)] = size
	}
	return overrides, nil
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/exportd.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	// The source database enforces a hard per-credential connection
	// ceiling; keep this aligned with exporter.slots.
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "exportd")
	v.SetDefault("solr.timeout", 30*time.Second)
	v.SetDefault("exporter.slots", 4)
	v.SetDefault("exporter.email_on_error", true)
	v.SetDefault("exporter.email_on_warning", true)
	v.SetDefault("exporter.automated_username", "exportd_admin")
	v.SetDefault("exporter.source_timeout", time.Duration(0))
	v.SetDefault("exporter.replication_retries", 2)
	v.SetDefault("exporter.replication_backoff", 2*time.Second)
	v.SetDefault("exporter.core_map", map[string]string{
		"ItemsToSolr":     "catalog",
		"BibsToSolr":      "bibdata",
		"LocationsToSolr": "catalog",
	})
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.from", "exportd@localhost")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.region", "us-east-1")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for operational knobs and
	// sensitive data
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.name", "DATABASE_NAME")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("exporter.slots", "EXPORTER_SLOTS")
	v.BindEnv("exporter.max_rec_chunks", "EXPORTER_MAX_RC_CONFIG")
	v.BindEnv("exporter.max_del_chunks", "EXPORTER_MAX_DC_CONFIG")
	v.BindEnv("exporter.email_on_error", "EXPORTER_EMAIL_ON_ERROR")
	v.BindEnv("exporter.email_on_warning", "EXPORTER_EMAIL_ON_WARNING")
	v.BindEnv("exporter.automated_username", "EXPORTER_AUTOMATED_USERNAME")
	v.BindEnv("exporter.source_timeout", "EXPORTER_SOURCE_TIMEOUT")
	v.BindEnv("smtp.host", "SMTP_HOST")
	v.BindEnv("smtp.username", "SMTP_USERNAME")
	v.BindEnv("smtp.password", "SMTP_PASSWORD")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Per-core replication settings follow the SOLR_<CORE>_* convention
	// and override whatever the config file says.
	for i := range cfg.Solr.Cores {
		applyCoreEnvOverrides(v, &cfg.Solr.Cores[i])
	}

	// Validate parseable override strings up front so a malformed
	// EXPORTER_MAX_*_CONFIG fails at startup, not at job-trigger time.
	if _, err := cfg.Exporter.RecChunkOverrides(); err != nil {
		return nil, fmt.Errorf("EXPORTER_MAX_RC_CONFIG: %w", err)
	}
	if _, err := cfg.Exporter.DelChunkOverrides(); err != nil {
		return nil, fmt.Errorf("EXPORTER_MAX_DC_CONFIG: %w", err)
	}

	return &cfg, nil
}

// applyCoreEnvOverrides applies SOLR_<CORE>_MANUAL_REPLICATION,
// SOLR_<CORE>_MANUAL_REPLICATION_HANDLER and SOLR_<CORE>_FOLLOWER_URLS
// to a core entry. Follower URLs are comma-separated.
func applyCoreEnvOverrides(v *viper.Viper, core *SolrCoreConfig) {
	prefix := "SOLR_" + strings.ToUpper(strings.ReplaceAll(core.Name, "-", "_"))

	if raw := v.GetString(prefix + "_MANUAL_REPLICATION"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			core.ManualReplication = b
		}
	}
	if handler := v.GetString(prefix + "_MANUAL_REPLICATION_HANDLER"); handler != "" {
		core.ReplicationHandler = handler
	}
	if raw := v.GetString(prefix + "_FOLLOWER_URLS"); raw != "" {
		var urls []string
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		core.FollowerURLs = urls
	}
	if core.ReplicationHandler == "" {
		core.ReplicationHandler = "replication"
	}
}
