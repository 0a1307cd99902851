package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagerduty.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoadPagerDutyConfig_Success(t *testing.T) {
	path := writeYAML(t, `
token: test-token-123
services:
  - name: Payments
    url: https://acme.pagerduty.com/service-directory/PABC123
  - name: Checkout
    url: https://acme.pagerduty.com/service-directory/PXYZ789
`)
	cfg, err := LoadPagerDutyConfig(path)
	if err != nil {
		t.Fatalf("LoadPagerDutyConfig: %v", err)
	}
	if cfg.Token != "test-token-123" {
		t.Errorf("token = %q", cfg.Token)
	}
	if len(cfg.Services) != 2 || cfg.Services[0].Name != "Payments" {
		t.Fatalf("unexpected services: %+v", cfg.Services)
	}
}

func TestLoadPagerDutyConfig_MissingToken(t *testing.T) {
	path := writeYAML(t, "services: []\n")
	if _, err := LoadPagerDutyConfig(path); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestLoadPagerDutyConfig_MissingFile(t *testing.T) {
	if _, err := LoadPagerDutyConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseServiceID(t *testing.T) {
	cases := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://acme.pagerduty.com/service-directory/PABC123", "PABC123", false},
		{"https://acme.pagerduty.com/services/P12BC34", "P12BC34", false},
		// lowercase token, too short, trailing slash, no token at all
		{"https://acme.pagerduty.com/service-directory/pabc123", "", true},
		{"https://acme.pagerduty.com/service-directory/PAB", "", true},
		{"https://acme.pagerduty.com/service-directory/PABC123/", "", true},
		{"https://acme.pagerduty.com/", "", true},
	}
	for _, tc := range cases {
		got, err := ParseServiceID(tc.url)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseServiceID(%q): expected error", tc.url)
				continue
			}
			var invalid *InvalidServiceURLError
			if !errors.As(err, &invalid) {
				t.Errorf("ParseServiceID(%q): error type %T, want *InvalidServiceURLError", tc.url, err)
			} else if invalid.URL != tc.url {
				t.Errorf("error should carry the offending URL, got %q", invalid.URL)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseServiceID(%q): %v", tc.url, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseServiceID(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestDirectory_OrderDedupAndLookup(t *testing.T) {
	cfg := &PagerDutyConfig{
		Token: "tok",
		Services: []ServiceRef{
			{Name: "Payments", URL: "https://acme.pagerduty.com/services/PABC123"},
			{Name: "Checkout", URL: "https://acme.pagerduty.com/services/PXYZ789"},
			{Name: "Payments v2", URL: "https://acme.pagerduty.com/services/PABC123"}, // dup id
		},
	}
	dir, err := cfg.Directory()
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if dir.Len() != 2 {
		t.Fatalf("Len = %d, want 2", dir.Len())
	}
	ids := dir.IDs()
	if ids[0] != "PABC123" || ids[1] != "PXYZ789" {
		t.Fatalf("IDs order = %v", ids)
	}
	// Last entry wins the display name for a duplicated id.
	if name, ok := dir.Name("PABC123"); !ok || name != "Payments v2" {
		t.Fatalf("Name(PABC123) = %q, %v", name, ok)
	}
	if !dir.Has("PXYZ789") || dir.Has("PNOPE00") {
		t.Fatal("Has lookup misbehaved")
	}
}

func TestDirectory_InvalidURLFailsWhole(t *testing.T) {
	cfg := &PagerDutyConfig{
		Token: "tok",
		Services: []ServiceRef{
			{Name: "Good", URL: "https://acme.pagerduty.com/services/PABC123"},
			{Name: "Bad", URL: "https://acme.pagerduty.com/services/short"},
		},
	}
	if _, err := cfg.Directory(); err == nil {
		t.Fatal("expected error for unparseable service URL")
	}
}
