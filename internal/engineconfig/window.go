package engineconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/barc/catalog/internal/types"
)

// WindowConfig names the days and hour-of-day range during which the
// maintenance worker is permitted to purge/prune (§4.7 "is_maintenance_time").
// Persisted alongside the TOML tunables as a sibling ".window.yaml" file,
// since it is policy an operator edits by hand more often than the
// numeric tunables.
type WindowConfig struct {
	Days      []string `yaml:"days"`       // e.g. ["mon","tue",...]; empty means every day
	StartHour int      `yaml:"start_hour"` // 0-23, inclusive
	EndHour   int       `yaml:"end_hour"`  // 0-23, exclusive; EndHour < StartHour wraps past midnight, EndHour == StartHour is all day
}

// DefaultWindowConfig permits maintenance at any time, matching §4.7's
// implicit default when no window policy has been configured.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{StartHour: 0, EndHour: 0}
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Predicate compiles w into a types.TimeWindow the maintenance worker
// can call on every loop iteration (§4.7 step 4).
func (w WindowConfig) Predicate() types.TimeWindow {
	if len(w.Days) == 0 && w.StartHour == 0 && w.EndHour == 0 {
		return types.AlwaysOpen
	}
	days := make(map[time.Weekday]bool, len(w.Days))
	for _, d := range w.Days {
		if wd, ok := weekdayNames[strings.ToLower(d)]; ok {
			days[wd] = true
		}
	}
	return func(now time.Time) bool {
		if len(days) > 0 && !days[now.Weekday()] {
			return false
		}
		h := now.Hour()
		if w.StartHour == w.EndHour {
			return true
		}
		if w.StartHour < w.EndHour {
			return h >= w.StartHour && h < w.EndHour
		}
		return h >= w.StartHour || h < w.EndHour // wraps past midnight
	}
}

func windowPath(configPath string) string {
	if configPath == "" {
		return ""
	}
	return configPath + ".window.yaml"
}

func loadWindowConfig(configPath string) (WindowConfig, error) {
	path := windowPath(configPath)
	if path == "" {
		return DefaultWindowConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultWindowConfig(), nil
		}
		return WindowConfig{}, fmt.Errorf("engineconfig: read window config: %w", err)
	}
	var w WindowConfig
	if err := yaml.Unmarshal(data, &w); err != nil {
		return WindowConfig{}, fmt.Errorf("engineconfig: parse window config: %w", err)
	}
	return w, nil
}

func saveWindowConfig(configPath string, w WindowConfig) error {
	path := windowPath(configPath)
	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(w)
	if err != nil {
		return fmt.Errorf("engineconfig: marshal window config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func openTruncate(path string) (*os.File, error) {
	return os.Create(path)
}

// WatchWindow watches the window-config sibling of configPath for edits
// and calls onChange with the reloaded WindowConfig whenever it changes,
// grounded on the teacher's use of fsnotify for live config reload.
// It runs until stop is closed.
func WatchWindow(configPath string, log *slog.Logger, stop <-chan struct{}, onChange func(WindowConfig)) error {
	path := windowPath(configPath)
	if path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("engineconfig: new watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("engineconfig: watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w, err := loadWindowConfig(configPath)
				if err != nil {
					log.Warn("reloading maintenance window config", "error", err)
					continue
				}
				onChange(w)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("maintenance window watcher error", "error", err)
			}
		}
	}()
	return nil
}
