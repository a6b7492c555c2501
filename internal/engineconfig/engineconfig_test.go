package engineconfig

import (
	"testing"
	"time"
)

func TestDefaultTunables(t *testing.T) {
	d := DefaultTunables()
	if d.PurgeBatchLimit != 4096 {
		t.Errorf("PurgeBatchLimit = %d, want 4096", d.PurgeBatchLimit)
	}
	if d.MaintenanceSleep != 120*time.Second {
		t.Errorf("MaintenanceSleep = %v, want 120s", d.MaintenanceSleep)
	}
	if d.BulkPurgeTimeout != 10*time.Minute {
		t.Errorf("BulkPurgeTimeout = %v, want 10m", d.BulkPurgeTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Tunables != DefaultTunables() {
		t.Errorf("Load(\"\") tunables = %+v, want defaults", cfg.Tunables)
	}
}

func TestWindowConfigPredicate(t *testing.T) {
	tests := []struct {
		name string
		w    WindowConfig
		hour int
		want bool
	}{
		{"always open default", DefaultWindowConfig(), 3, true},
		{"inside simple range", WindowConfig{StartHour: 1, EndHour: 5}, 2, true},
		{"outside simple range", WindowConfig{StartHour: 1, EndHour: 5}, 6, false},
		{"inside wrapped range", WindowConfig{StartHour: 22, EndHour: 2}, 23, true},
		{"inside wrapped range after midnight", WindowConfig{StartHour: 22, EndHour: 2}, 1, true},
		{"outside wrapped range", WindowConfig{StartHour: 22, EndHour: 2}, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 1, 5, tt.hour, 0, 0, 0, time.UTC) // a Monday
			if got := tt.w.Predicate()(now); got != tt.want {
				t.Errorf("Predicate()(%v) = %v, want %v", now, got, tt.want)
			}
		})
	}
}

func TestWindowConfigDayFilter(t *testing.T) {
	w := WindowConfig{Days: []string{"sat", "sun"}}
	saturday := time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	if !w.Predicate()(saturday) {
		t.Error("expected saturday to be within the weekend window")
	}
	if w.Predicate()(monday) {
		t.Error("expected monday to fall outside the weekend window")
	}
}
