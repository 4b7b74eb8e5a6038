package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	IngestionTypeDB  = "db"
	IngestionTypeAPI = "api"

	SolverBackendGLPK = "glpk"
)

var (
	ErrUnknownIngestionType = errors.New("unsupported ingestion type")
	ErrUnknownSolverBackend = errors.New("unsupported solver backend")
)

// envPlaceholder matches values of the form ENV("NAME") or ENV(NAME).
var envPlaceholder = regexp.MustCompile(`^ENV\(\s*["']?([A-Za-z_][A-Za-z0-9_.-]*)["']?\s*\)$`)

// DBConnection describes a Postgres connection used by the worker or API.
type DBConnection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	PoolSize int    `yaml:"pool_size"`
}

// ConnectionString renders a lib/pq compatible DSN.
func (c DBConnection) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database)
}

func (c DBConnection) validate() error {
	if c.Host == "" || c.Database == "" || c.User == "" {
		return errors.New("db_connection requires host, database and user")
	}
	if c.Port <= 0 {
		return fmt.Errorf("db_connection port must be positive, got %d", c.Port)
	}
	return nil
}

// Ingestion selects the input source. Type "db" reads the shared store using
// the inlined connection fields; type "api" pages a read-only HTTP surface,
// reusing Host as the base URL. The inlined struct owns the "host" key for
// both modes.
type Ingestion struct {
	Type   string `yaml:"type"`
	APIKey string `yaml:"api_key"`

	DBConnection `yaml:",inline"`
}

func (i Ingestion) validate() error {
	switch i.Type {
	case IngestionTypeDB:
		return i.DBConnection.validate()
	case IngestionTypeAPI:
		if i.Host == "" {
			return errors.New("ingestion.host is required for api ingestion")
		}
		if i.APIKey == "" {
			return errors.New("ingestion.api_key is required for api ingestion")
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIngestionType, i.Type)
	}
}

// Logging mirrors the worker's file-sink options. Console logging is always
// on; the rotating file sink is opt-in.
type Logging struct {
	EnableFileLogging bool   `yaml:"enable_file_logging"`
	LogDir            string `yaml:"log_dir"`
	LogFileName       string `yaml:"log_file_name"`
	RotationMaxMB     int    `yaml:"rotation_max_mb"`
	RetentionDays     int    `yaml:"retention_days"`
	Compress          bool   `yaml:"compress"`
}

type Solver struct {
	Backend string `yaml:"backend"`
}

type RouteCache struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// Worker is the full worker configuration loaded from YAML.
type Worker struct {
	PollIntervalSeconds float64      `yaml:"poll_interval_seconds"`
	GoogleMapsAPIKey    string       `yaml:"google_maps_api_key"`
	SpeedFactor         float64      `yaml:"speed_factor"`
	TravelMode          string       `yaml:"travel_mode"`
	RoutingPreference   string       `yaml:"routing_preference"`
	DBConnection        DBConnection `yaml:"db_connection"`
	Ingestion           Ingestion    `yaml:"ingestion"`
	Solver              Solver       `yaml:"solver"`
	RouteCache          RouteCache   `yaml:"route_cache"`
	Logging             Logging      `yaml:"logging"`
}

// API is the configuration of the read-only REST surface.
type API struct {
	ListenAddr   string       `yaml:"listen_addr"`
	APIKey       string       `yaml:"api_key"`
	DBConnection DBConnection `yaml:"db_connection"`
	Logging      Logging      `yaml:"logging"`
}

func defaultWorker() Worker {
	return Worker{
		PollIntervalSeconds: 10,
		SpeedFactor:         1.3,
		TravelMode:          "DRIVE",
		RoutingPreference:   "TRAFFIC_AWARE_OPTIMAL",
		DBConnection:        DBConnection{Port: 5432, PoolSize: 10},
		Ingestion:           Ingestion{DBConnection: DBConnection{Port: 5432, PoolSize: 10}},
		Solver:              Solver{Backend: SolverBackendGLPK},
		RouteCache:          RouteCache{TTLSeconds: 300},
		Logging: Logging{
			LogDir:        "logs",
			LogFileName:   "worker.log",
			RotationMaxMB: 100,
			RetentionDays: 30,
			Compress:      true,
		},
	}
}

// LoadWorker reads, env-resolves and validates the worker configuration.
func LoadWorker(path string) (Worker, error) {
	cfg := defaultWorker()
	if err := loadYAML(path, &cfg); err != nil {
		return Worker{}, err
	}
	if err := cfg.validate(); err != nil {
		return Worker{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAPI reads, env-resolves and validates the API configuration.
func LoadAPI(path string) (API, error) {
	cfg := API{
		ListenAddr:   ":8000",
		DBConnection: DBConnection{Port: 5432, PoolSize: 10},
		Logging:      Logging{LogDir: "logs", LogFileName: "api.log", RotationMaxMB: 100, RetentionDays: 30, Compress: true},
	}
	if err := loadYAML(path, &cfg); err != nil {
		return API{}, err
	}
	if cfg.APIKey == "" {
		return API{}, fmt.Errorf("config %s: api_key is required", path)
	}
	if err := cfg.DBConnection.validate(); err != nil {
		return API{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Worker) validate() error {
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %v", c.PollIntervalSeconds)
	}
	if c.GoogleMapsAPIKey == "" {
		return errors.New("google_maps_api_key is required")
	}
	if c.SpeedFactor < 1 {
		return fmt.Errorf("speed_factor must be >= 1, got %v", c.SpeedFactor)
	}
	if c.Solver.Backend != SolverBackendGLPK {
		return fmt.Errorf("%w: %q", ErrUnknownSolverBackend, c.Solver.Backend)
	}
	if err := c.DBConnection.validate(); err != nil {
		return err
	}
	if err := c.Ingestion.validate(); err != nil {
		return err
	}
	if c.RouteCache.Enabled && c.RouteCache.URL == "" {
		return errors.New("route_cache.url is required when route_cache.enabled")
	}
	return nil
}

func loadYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := resolveEnv(&root); err != nil {
		return fmt.Errorf("resolve config %s: %w", path, err)
	}

	resolved, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("re-encode config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(resolved))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// resolveEnv walks the YAML tree and substitutes ENV("NAME") scalars with the
// corresponding environment value. A missing variable fails the load.
func resolveEnv(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		m := envPlaceholder.FindStringSubmatch(node.Value)
		if m == nil {
			return nil
		}
		val, ok := os.LookupEnv(m[1])
		if !ok {
			return fmt.Errorf("environment variable %s is not set", m[1])
		}
		node.Value = val
		// Let the decoder re-infer the scalar type (ports, intervals).
		node.Tag = ""
		node.Style = 0
		return nil
	}
	for _, child := range node.Content {
		if err := resolveEnv(child); err != nil {
			return err
		}
	}
	return nil
}
