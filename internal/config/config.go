// Package config loads the immutable service configuration from an optional
// YAML file followed by CHEBI2GENE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHEBI2GENE_"

// Config is the complete service configuration. It is built once at startup
// and passed by value; nothing mutates it afterwards.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	SPARQL  SPARQLConfig  `yaml:"sparql"`
	Graphs  GraphConfig   `yaml:"graphs"`
	Links   LinkConfig    `yaml:"links"`
	Logging LoggingConfig `yaml:"logging"`
	Exports ExportConfig  `yaml:"exports"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SPARQLConfig describes the remote endpoints and call limits.
type SPARQLConfig struct {
	// Endpoint serves the Rhea, UniProt and ITAG graphs.
	Endpoint string `yaml:"endpoint"`
	// SearchEndpoint serves the ChEBI graph used by name search.
	SearchEndpoint   string        `yaml:"search_endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
	BatchSize        int           `yaml:"batch_size"`
	Strict           bool          `yaml:"strict"`
	UserAgent        string        `yaml:"user_agent"`
}

// GraphConfig names the RDF graphs queried by each lookup.
type GraphConfig struct {
	Rhea    string `yaml:"rhea"`
	UniProt string `yaml:"uniprot"`
	ITAG    string `yaml:"itag"`
	ChEBI   string `yaml:"chebi"`
}

// LinkConfig holds printf patterns for outbound links in reports.
type LinkConfig struct {
	Chebi    string `yaml:"chebi"`
	Reaction string `yaml:"reaction"`
	Protein  string `yaml:"protein"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json|console
}

// ExportConfig configures the report export archive.
type ExportConfig struct {
	Enabled   bool         `yaml:"enabled"`
	QueueSize int          `yaml:"queue_size"`
	Blob      BlobConfig   `yaml:"blob"`
	Ledger    LedgerConfig `yaml:"ledger"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver"` // fs|s3|memory
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type LedgerConfig struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the configuration used when no file or override is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		SPARQL: SPARQLConfig{
			Endpoint:         "http://sparql.plantbreeding.nl:8080/sparql/",
			SearchEndpoint:   "http://localhost:8890/sparql",
			Timeout:          30 * time.Second,
			MaxResponseBytes: 32 << 20,
			BatchSize:        200,
			UserAgent:        "chebi2gene",
		},
		Graphs: GraphConfig{
			Rhea:    "http://rhea.pbr.wur.nl/",
			UniProt: "http://uniprot.pbr.wur.nl/",
			ITAG:    "http://itag2.pbr.wur.nl/",
			ChEBI:   "http://chebi.pbr.wur.nl/",
		},
		Links: LinkConfig{
			Chebi:    "http://www.ebi.ac.uk/chebi/searchId.do?chebiId=%s",
			Reaction: "http://www.ebi.ac.uk/rhea/reaction.xhtml?id=RHEA:%s",
			Protein:  "http://www.uniprot.org/uniprot/%s",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Exports: ExportConfig{
			Enabled:   true,
			QueueSize: 32,
			Blob:      BlobConfig{Driver: "fs", FSRoot: "./exports"},
			Ledger:    LedgerConfig{Driver: "sqlite", SQLitePath: "./exports/ledger.db"},
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	dur("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("SPARQL_ENDPOINT", &c.SPARQL.Endpoint)
	str("SPARQL_SEARCH_ENDPOINT", &c.SPARQL.SearchEndpoint)
	dur("SPARQL_TIMEOUT", &c.SPARQL.Timeout)
	integer("SPARQL_BATCH_SIZE", &c.SPARQL.BatchSize)
	boolean("SPARQL_STRICT", &c.SPARQL.Strict)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	boolean("EXPORTS_ENABLED", &c.Exports.Enabled)
	str("BLOB_DRIVER", &c.Exports.Blob.Driver)
	str("BLOB_FS_ROOT", &c.Exports.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &c.Exports.Blob.S3.Bucket)
	str("BLOB_S3_REGION", &c.Exports.Blob.S3.Region)
	str("BLOB_S3_ENDPOINT", &c.Exports.Blob.S3.Endpoint)
	boolean("BLOB_S3_PATH_STYLE", &c.Exports.Blob.S3.PathStyle)
	str("LEDGER_DRIVER", &c.Exports.Ledger.Driver)
	str("LEDGER_SQLITE_PATH", &c.Exports.Ledger.SQLitePath)
	str("LEDGER_POSTGRES_DSN", &c.Exports.Ledger.PostgresDSN)

	return errors.Join(errs...)
}

type setting struct {
	name  string
	value string
}

// Validate reports every invalid setting at once, in declaration order.
func (c Config) Validate() error {
	var errs []error
	for _, s := range []setting{
		{"sparql.endpoint", c.SPARQL.Endpoint},
		{"sparql.search_endpoint", c.SPARQL.SearchEndpoint},
	} {
		u, err := url.Parse(s.value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute http(s) url, got %q", s.name, s.value))
		}
	}
	if c.SPARQL.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sparql.timeout must be positive"))
	}
	if c.SPARQL.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("sparql.batch_size must be positive"))
	}
	for _, s := range []setting{
		{"graphs.rhea", c.Graphs.Rhea},
		{"graphs.uniprot", c.Graphs.UniProt},
		{"graphs.itag", c.Graphs.ITAG},
		{"graphs.chebi", c.Graphs.ChEBI},
	} {
		if strings.TrimSpace(s.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", s.name))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Exports.Enabled {
		switch c.Exports.Blob.Driver {
		case "fs", "memory":
		case "s3":
			if c.Exports.Blob.S3.Bucket == "" {
				errs = append(errs, fmt.Errorf("exports.blob.s3.bucket required for s3 driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown exports.blob.driver %q", c.Exports.Blob.Driver))
		}
		switch c.Exports.Ledger.Driver {
		case "memory", "sqlite":
		case "postgres":
			if c.Exports.Ledger.PostgresDSN == "" {
				errs = append(errs, fmt.Errorf("exports.ledger.postgres_dsn required for postgres driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown exports.ledger.driver %q", c.Exports.Ledger.Driver))
		}
		if c.Exports.QueueSize <= 0 {
			errs = append(errs, fmt.Errorf("exports.queue_size must be positive"))
		}
	}
	return errors.Join(errs...)
}
