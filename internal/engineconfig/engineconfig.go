// Package engineconfig loads the catalog engine's tunable constants
// (§6) from a TOML config file via viper, and its maintenance-window
// policy from a sibling ".window.yaml" file, which WatchWindow watches
// for edits the way the teacher's config layer reacts to on-disk
// changes.
package engineconfig

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Tunables holds the defaults named in §6: purge batch size, bulk-purge
// timeout, maintenance sleep interval, inter-batch yield, progress log
// interval, and the legacy-import cleanup period.
type Tunables struct {
	PurgeBatchLimit     int           `mapstructure:"purge_batch_limit"`
	BulkPurgeTimeout    time.Duration `mapstructure:"bulk_purge_timeout"`
	MaintenanceSleep    time.Duration `mapstructure:"maintenance_sleep"`
	InterBatchYield     time.Duration `mapstructure:"inter_batch_yield"`
	ProgressLogInterval time.Duration `mapstructure:"progress_log_interval"`
	IndexCleanupPeriod  time.Duration `mapstructure:"index_cleanup_period"`
}

// DefaultTunables matches spec.md §6's tunable defaults.
func DefaultTunables() Tunables {
	return Tunables{
		PurgeBatchLimit:     4096,
		BulkPurgeTimeout:    5 * 120 * time.Second,
		MaintenanceSleep:    120 * time.Second,
		InterBatchYield:     2 * time.Second,
		ProgressLogInterval: 60 * time.Second,
		IndexCleanupPeriod:  4 * time.Hour,
	}
}

// Config is the full on-disk engine configuration: tunables plus the
// maintenance-window policy (see window.go).
type Config struct {
	Tunables Tunables
	Window   WindowConfig
}

// DefaultConfig returns a Config with every field at its spec default
// and a maintenance window that is always open.
func DefaultConfig() Config {
	return Config{
		Tunables: DefaultTunables(),
		Window:   DefaultWindowConfig(),
	}
}

// Load reads a TOML config file at path into a Config, falling back to
// DefaultConfig for any field the file doesn't set. A missing file is
// not an error; it just yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	setDefaults(v, cfg.Tunables)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return cfg, fmt.Errorf("engineconfig: read %s: %w", path, err)
	}

	var t Tunables
	if err := v.UnmarshalKey("tunables", &t); err != nil {
		return cfg, fmt.Errorf("engineconfig: decode tunables: %w", err)
	}
	if t != (Tunables{}) {
		cfg.Tunables = t
	}

	win, err := loadWindowConfig(path)
	if err != nil {
		return cfg, err
	}
	cfg.Window = win

	return cfg, nil
}

func setDefaults(v *viper.Viper, t Tunables) {
	v.SetDefault("tunables.purge_batch_limit", t.PurgeBatchLimit)
	v.SetDefault("tunables.bulk_purge_timeout", t.BulkPurgeTimeout)
	v.SetDefault("tunables.maintenance_sleep", t.MaintenanceSleep)
	v.SetDefault("tunables.inter_batch_yield", t.InterBatchYield)
	v.SetDefault("tunables.progress_log_interval", t.ProgressLogInterval)
	v.SetDefault("tunables.index_cleanup_period", t.IndexCleanupPeriod)
}

// Save writes cfg as TOML to path, grounded on the teacher's config
// layer writing its own persisted-state files with a library encoder
// rather than hand-built text.
func Save(path string, cfg Config) error {
	type tomlTunables struct {
		PurgeBatchLimit     int    `toml:"purge_batch_limit"`
		BulkPurgeTimeout    string `toml:"bulk_purge_timeout"`
		MaintenanceSleep    string `toml:"maintenance_sleep"`
		InterBatchYield     string `toml:"inter_batch_yield"`
		ProgressLogInterval string `toml:"progress_log_interval"`
		IndexCleanupPeriod  string `toml:"index_cleanup_period"`
	}
	doc := struct {
		Tunables tomlTunables `toml:"tunables"`
	}{
		Tunables: tomlTunables{
			PurgeBatchLimit:     cfg.Tunables.PurgeBatchLimit,
			BulkPurgeTimeout:    cfg.Tunables.BulkPurgeTimeout.String(),
			MaintenanceSleep:    cfg.Tunables.MaintenanceSleep.String(),
			InterBatchYield:     cfg.Tunables.InterBatchYield.String(),
			ProgressLogInterval: cfg.Tunables.ProgressLogInterval.String(),
			IndexCleanupPeriod:  cfg.Tunables.IndexCleanupPeriod.String(),
		},
	}

	f, err := openTruncate(path)
	if err != nil {
		return fmt.Errorf("engineconfig: open %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("engineconfig: encode %s: %w", path, err)
	}
	return saveWindowConfig(path, cfg.Window)
}
