// config.go holds .parley config types and resolution (load, effective
// options with flags overriding file values).
package parleycli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// duration lets yaml carry human-friendly values like "30s" or "2m".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// localConfig holds optional values from .parley/config.yaml (flags override).
type localConfig struct {
	NATSURL      string `yaml:"nats_url"`
	NATSUser     string `yaml:"nats_user"`
	NATSPassword string `yaml:"nats_password"`

	DB          string `yaml:"db"`
	PostgresDSN string `yaml:"postgres_dsn"`

	KVAddr     string `yaml:"kv_addr"`
	KVPassword string `yaml:"kv_password"`

	AccountID string `yaml:"account_id"`
	Model     string `yaml:"model"`

	ResyncInterval   *duration `yaml:"resync_interval"`
	SnapshotInterval *duration `yaml:"snapshot_interval"`
	Timeout          *duration `yaml:"timeout"`

	Tracing *bool `yaml:"tracing"`
}

// loadLocalConfig tries ./.parley/config.yaml then ~/.parley/config.yaml.
// Returns (config, pathToConfigFile, nil). If neither file exists,
// returns (empty, "", nil).
func loadLocalConfig() (localConfig, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return localConfig{}, "", err
	}
	try := []string{
		filepath.Join(cwd, ".parley", "config.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		try = append(try, filepath.Join(home, ".parley", "config.yaml"))
	}
	for _, p := range try {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return localConfig{}, "", err
		}
		var cfg localConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return localConfig{}, "", fmt.Errorf("%s: %w", p, err)
		}
		return cfg, p, nil
	}
	return localConfig{}, "", nil
}

// runOpts carries all effective config and flags needed to build the
// engine.
type runOpts struct {
	EffectiveNATSURL          string
	EffectiveNATSUser         string
	EffectiveNATSPassword     string
	EffectiveDB               string
	EffectivePostgresDSN      string
	EffectiveKVAddr           string
	EffectiveKVPassword       string
	EffectiveAccountID        string
	EffectiveModel            string
	EffectiveResyncInterval   time.Duration
	EffectiveSnapshotInterval time.Duration
	EffectiveTimeout          time.Duration
	EffectiveTracing          bool
	Cfg                       localConfig
	ParleyDir                 string
}

// flagValues is the subset of command-line flags that participate in
// config resolution. A zero value means the flag was not passed.
type flagValues struct {
	NATSURL    string
	DB         string
	KVAddr     string
	Account    string
	Model      string
	Timeout    time.Duration
	TimeoutSet bool
	Tracing    bool
	TracingSet bool
}

// resolveOptions merges flags over file config over defaults. Flags win
// when explicitly set; otherwise the config file value applies; the
// built-in default is last.
func resolveOptions(cfg localConfig, configPath string, flags flagValues) runOpts {
	var parleyDir string
	if configPath != "" {
		parleyDir = filepath.Dir(configPath)
	} else {
		cwd, _ := os.Getwd()
		parleyDir = filepath.Join(cwd, ".parley")
	}

	opts := runOpts{
		EffectiveNATSURL:          firstNonEmpty(flags.NATSURL, cfg.NATSURL),
		EffectiveNATSUser:         cfg.NATSUser,
		EffectiveNATSPassword:     cfg.NATSPassword,
		EffectiveDB:               firstNonEmpty(flags.DB, cfg.DB, filepath.Join(parleyDir, "state.db")),
		EffectivePostgresDSN:      cfg.PostgresDSN,
		EffectiveKVAddr:           firstNonEmpty(flags.KVAddr, cfg.KVAddr),
		EffectiveKVPassword:       cfg.KVPassword,
		EffectiveAccountID:        firstNonEmpty(flags.Account, cfg.AccountID, defaultAccountID),
		EffectiveModel:            firstNonEmpty(flags.Model, cfg.Model),
		EffectiveResyncInterval:   defaultResyncInterval,
		EffectiveSnapshotInterval: defaultSnapshotInterval,
		EffectiveTimeout:          defaultTimeout,
		Cfg:                       cfg,
		ParleyDir:                 parleyDir,
	}
	if cfg.ResyncInterval != nil {
		opts.EffectiveResyncInterval = time.Duration(*cfg.ResyncInterval)
	}
	if cfg.SnapshotInterval != nil {
		opts.EffectiveSnapshotInterval = time.Duration(*cfg.SnapshotInterval)
	}
	if cfg.Timeout != nil {
		opts.EffectiveTimeout = time.Duration(*cfg.Timeout)
	}
	if flags.TimeoutSet {
		opts.EffectiveTimeout = flags.Timeout
	}
	if cfg.Tracing != nil {
		opts.EffectiveTracing = *cfg.Tracing
	}
	if flags.TracingSet {
		opts.EffectiveTracing = flags.Tracing
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
