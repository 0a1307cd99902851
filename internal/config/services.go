// Static service directory.
//
// The directory is a YAML document carrying the API token and the list of
// monitored services. Each service entry names a display name and the
// service's PagerDuty URL; the service identifier is the trailing 7-character
// uppercase alphanumeric token of the URL path. The directory is the single
// source of truth for which services the fetcher monitors and for display
// names (preferred over whatever name the remote API returns).
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// serviceIDPattern matches the fixed-length service identifier at the end of
// a PagerDuty service URL path, e.g. "/service-directory/PABC123".
var serviceIDPattern = regexp.MustCompile(`/([A-Z0-9]{7})$`)

// ServiceRef is one entry of the services list in the YAML directory.
type ServiceRef struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// PagerDutyConfig is the parsed YAML service directory document.
type PagerDutyConfig struct {
	Token    string       `yaml:"token"`
	Services []ServiceRef `yaml:"services"`
}

// InvalidServiceURLError reports a configured service URL from which no
// service identifier could be extracted.
type InvalidServiceURLError struct {
	URL string
}

func (e *InvalidServiceURLError) Error() string {
	return fmt.Sprintf("config: cannot extract service id from URL %q", e.URL)
}

// LoadPagerDutyConfig reads and parses the YAML service directory at path.
func LoadPagerDutyConfig(path string) (*PagerDutyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg PagerDutyConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("config: %s: missing token", path)
	}
	return &cfg, nil
}

// ParseServiceID extracts the service identifier from a PagerDuty service
// URL. It returns an *InvalidServiceURLError when the URL does not end in a
// 7-character uppercase alphanumeric path token.
func ParseServiceID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &InvalidServiceURLError{URL: rawURL}
	}
	m := serviceIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return "", &InvalidServiceURLError{URL: rawURL}
	}
	return m[1], nil
}

// Directory maps service identifiers to display names, preserving the order
// of the YAML document. It is immutable after construction.
type Directory struct {
	ids   []string
	names map[string]string
}

// Directory resolves every configured service URL and builds the id→name
// directory. A single unparseable URL fails the whole call so that a broken
// configuration is surfaced at startup rather than mid-fetch.
func (c *PagerDutyConfig) Directory() (*Directory, error) {
	d := &Directory{names: make(map[string]string, len(c.Services))}
	for _, svc := range c.Services {
		id, err := ParseServiceID(svc.URL)
		if err != nil {
			return nil, err
		}
		if _, dup := d.names[id]; !dup {
			d.ids = append(d.ids, id)
		}
		d.names[id] = svc.Name
	}
	return d, nil
}

// IDs returns the configured service identifiers in document order.
func (d *Directory) IDs() []string {
	out := make([]string, len(d.ids))
	copy(out, d.ids)
	return out
}

// Name returns the configured display name for a service identifier.
func (d *Directory) Name(id string) (string, bool) {
	n, ok := d.names[id]
	return n, ok
}

// Has reports whether the identifier is present in the directory.
func (d *Directory) Has(id string) bool {
	_, ok := d.names[id]
	return ok
}

// Len returns the number of configured services.
func (d *Directory) Len() int { return len(d.ids) }
