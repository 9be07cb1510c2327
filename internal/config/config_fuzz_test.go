package config

import (
	"strings"
	"testing"
	"time"
)

func FuzzLoadRefreshInterval(f *testing.F) {
	f.Add("")
	f.Add("1h")
	f.Add("0s")
	f.Add("-1s")
	f.Add("not-a-duration")

	f.Fuzz(func(t *testing.T, refreshInterval string) {
		if strings.ContainsRune(refreshInterval, '\x00') {
			t.Skip()
		}

		t.Setenv("SPLITZ_SITE_CODE", "fuzz-site")
		t.Setenv("SPLITZ_VISITOR_STORE", "")
		t.Setenv("SPLITZ_BASE_URL", "")
		t.Setenv("SPLITZ_REFRESH_INTERVAL", refreshInterval)

		cfg, err := Load("")
		trimmed := strings.TrimSpace(refreshInterval)
		if trimmed == "" {
			if err != nil {
				t.Fatalf("Load() error = %v, want nil for empty SPLITZ_REFRESH_INTERVAL", err)
			}
			if cfg.RefreshInterval != defaultRefreshInterval {
				t.Fatalf("RefreshInterval = %s, want %s", cfg.RefreshInterval, defaultRefreshInterval)
			}
			return
		}

		parsed, parseErr := time.ParseDuration(trimmed)
		if parseErr != nil {
			if err == nil {
				t.Fatalf("Load() error = nil, want non-nil for SPLITZ_REFRESH_INTERVAL=%q", refreshInterval)
			}
			return
		}

		if err != nil {
			t.Fatalf("Load() error = %v, want nil for SPLITZ_REFRESH_INTERVAL=%q", err, refreshInterval)
		}
		if parsed <= 0 {
			// Non-positive durations fall back to the default.
			if cfg.RefreshInterval != defaultRefreshInterval {
				t.Fatalf("RefreshInterval = %s, want default %s", cfg.RefreshInterval, defaultRefreshInterval)
			}
			return
		}
		if cfg.RefreshInterval != parsed {
			t.Fatalf("RefreshInterval = %s, want %s", cfg.RefreshInterval, parsed)
		}
	})
}

func FuzzLoadYAMLNeverPanics(f *testing.F) {
	f.Add("site_code: my-site\n")
	f.Add("site_code: [broken\n")
	f.Add(":\n- {")

	f.Fuzz(func(t *testing.T, content string) {
		t.Setenv("SPLITZ_SITE_CODE", "")
		path := writeConfigFile(t, content)
		_, _ = Load(path)
	})
}
