// Package config loads server configuration. Precedence, lowest to highest:
// built-in defaults, an optional rserv.yaml file, environment variables,
// command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Overlay modes.
const (
	GraphDisabled = "disabled"
	GraphMemory   = "memory"
	GraphIndexed  = "indexed"
)

// PATCH null-field policies.
const (
	PatchNullStore  = "store"
	PatchNullDelete = "delete"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Storage layout
	DataDir    string `yaml:"data_dir"`
	SchemaDir  string `yaml:"schema_dir"`
	SchemaName string `yaml:"schema_name"`

	// Graph overlay
	RservGraph          string `yaml:"rserv_graph"` // disabled | memory | indexed
	AdjacencyListFile   string `yaml:"adjacency_list_file"`
	GraphIndexFile      string `yaml:"graph_index_file"`
	GraphCycleDetection string `yaml:"graph_cycle_detection"` // error | warn | ignore | disable
	MaxQueryDepth       int    `yaml:"max_query_depth"`
	GraphQueryTTL       int    `yaml:"graph_query_ttl"` // seconds

	// Document semantics
	PatchNull       string `yaml:"patch_null"` // store | delete
	CascadingDelete bool   `yaml:"cascading_delete"`
	RefEmbedDepth   int    `yaml:"ref_embed_depth"`

	// Reads
	CacheTTL        int  `yaml:"cache_ttl"` // seconds
	DefaultPageSize int  `yaml:"default_page_size"`
	FulltextEnabled bool `yaml:"fulltext_enabled"`

	// Observability
	LogLevel      string `yaml:"log_level"`
	EnableMetrics bool   `yaml:"enable_metrics"`
	EnableCORS    bool   `yaml:"enable_cors"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Host:                "0.0.0.0",
		Port:                5000,
		DataDir:             "data",
		SchemaDir:           "schema",
		SchemaName:          "default",
		RservGraph:          GraphIndexed,
		AdjacencyListFile:   "graph.data",
		GraphIndexFile:      "graph.index",
		GraphCycleDetection: "warn",
		MaxQueryDepth:       10,
		GraphQueryTTL:       3600,
		PatchNull:           PatchNullStore,
		CascadingDelete:     false,
		RefEmbedDepth:       2,
		CacheTTL:            60,
		DefaultPageSize:     10,
		FulltextEnabled:     true,
		LogLevel:            "info",
		EnableMetrics:       true,
		EnableCORS:          true,
	}
}

// Load resolves the full configuration from defaults, the optional config
// file, the environment and the given command-line arguments.
func Load(args []string) (*Config, error) {
	cfg := Defaults()

	if err := cfg.applyFile("rserv.yaml"); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.applyFlags(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnv("RSERV_HOST", c.Host)
	c.Port = getEnvInt("RSERV_PORT", c.Port)
	c.DataDir = getEnv("RSERV_DATA_DIR", c.DataDir)
	c.SchemaDir = getEnv("RSERV_SCHEMA_DIR", c.SchemaDir)
	c.SchemaName = getEnv("RSERV_SCHEMA_NAME", c.SchemaName)
	c.RservGraph = getEnv("RSERV_GRAPH", c.RservGraph)
	c.AdjacencyListFile = getEnv("RSERV_ADJACENCY_LIST_FILE", c.AdjacencyListFile)
	c.GraphIndexFile = getEnv("RSERV_GRAPH_INDEX_FILE", c.GraphIndexFile)
	c.GraphCycleDetection = getEnv("RSERV_GRAPH_CYCLE_DETECTION", c.GraphCycleDetection)
	c.MaxQueryDepth = getEnvInt("RSERV_MAX_QUERY_DEPTH", c.MaxQueryDepth)
	c.GraphQueryTTL = getEnvInt("RSERV_GRAPH_QUERY_TTL", c.GraphQueryTTL)
	c.PatchNull = getEnv("RSERV_PATCH_NULL", c.PatchNull)
	c.CascadingDelete = getEnvBool("RSERV_CASCADING_DELETE", c.CascadingDelete)
	c.RefEmbedDepth = getEnvInt("RSERV_REF_EMBED_DEPTH", c.RefEmbedDepth)
	c.CacheTTL = getEnvInt("RSERV_CACHE_TTL", c.CacheTTL)
	c.DefaultPageSize = getEnvInt("RSERV_DEFAULT_PAGE_SIZE", c.DefaultPageSize)
	c.FulltextEnabled = getEnvBool("RSERV_FULLTEXT_ENABLED", c.FulltextEnabled)
	c.LogLevel = getEnv("RSERV_LOG_LEVEL", c.LogLevel)
	c.EnableMetrics = getEnvBool("RSERV_ENABLE_METRICS", c.EnableMetrics)
	c.EnableCORS = getEnvBool("RSERV_ENABLE_CORS", c.EnableCORS)
}

func (c *Config) applyFlags(args []string) error {
	fs := pflag.NewFlagSet("rserv", pflag.ContinueOnError)

	fs.StringVar(&c.Host, "host", c.Host, "bind address")
	fs.IntVar(&c.Port, "port", c.Port, "bind port")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "document storage root")
	fs.StringVar(&c.SchemaDir, "schema-dir", c.SchemaDir, "schema storage root")
	fs.StringVar(&c.SchemaName, "schema-name", c.SchemaName, "active schema")
	fs.StringVar(&c.RservGraph, "rserv-graph", c.RservGraph, "graph overlay mode: disabled, memory or indexed")
	fs.StringVar(&c.AdjacencyListFile, "adjacency-list-file", c.AdjacencyListFile, "adjacency dump path")
	fs.StringVar(&c.GraphIndexFile, "graph-index-file", c.GraphIndexFile, "inverted index dump path")
	fs.StringVar(&c.GraphCycleDetection, "graph-cycle-detection", c.GraphCycleDetection, "cycle policy: error, warn, ignore or disable")
	fs.IntVar(&c.MaxQueryDepth, "max-query-depth", c.MaxQueryDepth, "traversal depth bound")
	fs.IntVar(&c.GraphQueryTTL, "graph-query-ttl", c.GraphQueryTTL, "query session retention in seconds")
	fs.StringVar(&c.PatchNull, "patch-null", c.PatchNull, "PATCH null policy: store or delete")
	fs.BoolVar(&c.CascadingDelete, "cascading-delete", c.CascadingDelete, "delete documents referencing a deleted document")
	fs.IntVar(&c.RefEmbedDepth, "ref-embed-depth", c.RefEmbedDepth, "default REF expansion depth")
	fs.IntVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "read cache TTL in seconds")
	fs.IntVar(&c.DefaultPageSize, "default-page-size", c.DefaultPageSize, "default listing page size")
	fs.BoolVar(&c.FulltextEnabled, "fulltext-enabled", c.FulltextEnabled, "maintain the full-text index")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&c.EnableMetrics, "enable-metrics", c.EnableMetrics, "expose Prometheus metrics")
	fs.BoolVar(&c.EnableCORS, "enable-cors", c.EnableCORS, "allow cross-origin requests")

	return fs.Parse(args)
}

// Validate rejects out-of-range values and unknown enum members.
func (c *Config) Validate() error {
	switch c.RservGraph {
	case GraphDisabled, GraphMemory, GraphIndexed:
	default:
		return fmt.Errorf("invalid rserv_graph %q: want disabled, memory or indexed", c.RservGraph)
	}
	switch c.GraphCycleDetection {
	case "error", "warn", "ignore", "disable":
	default:
		return fmt.Errorf("invalid graph_cycle_detection %q: want error, warn, ignore or disable", c.GraphCycleDetection)
	}
	switch c.PatchNull {
	case PatchNullStore, PatchNullDelete:
	default:
		return fmt.Errorf("invalid patch_null %q: want store or delete", c.PatchNull)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxQueryDepth <= 0 {
		return fmt.Errorf("max_query_depth must be positive, got %d", c.MaxQueryDepth)
	}
	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("default_page_size must be positive, got %d", c.DefaultPageSize)
	}
	return nil
}

// GraphEnabled reports whether the overlay is maintained at all.
func (c *Config) GraphEnabled() bool {
	return c.RservGraph != GraphDisabled
}

// GraphIndexed reports whether the inverted index and dumps are maintained.
func (c *Config) GraphIndexed() bool {
	return c.RservGraph == GraphIndexed
}

// CacheTTLDuration is the read cache TTL.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// ListenAddr is the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}
