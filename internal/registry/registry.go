// Package registry holds the static service route table: logical service
// name to backend base URL. The table is built once at startup and immutable
// afterwards, so lookups need no locking.
package registry

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Route maps a logical service name to its backend.
type Route struct {
	Name       string
	BaseURL    string
	HealthPath string
}

// defaultRoutes is the Scorpius service constellation. Base URLs are the
// docker-compose defaults; SERVICE_URL_<NAME> overrides them per deployment.
var defaultRoutes = []Route{
	{Name: "scanner", BaseURL: "http://localhost:8001", HealthPath: "/health"},
	{Name: "honeypot", BaseURL: "http://localhost:8002", HealthPath: "/health"},
	{Name: "mev-protection", BaseURL: "http://localhost:8003", HealthPath: "/health"},
	{Name: "mempool", BaseURL: "http://localhost:8004", HealthPath: "/health"},
	{Name: "forensics", BaseURL: "http://localhost:8005", HealthPath: "/health"},
	{Name: "quantum", BaseURL: "http://localhost:8006", HealthPath: "/health"},
	{Name: "bytecode", BaseURL: "http://localhost:8007", HealthPath: "/health"},
	{Name: "simulation", BaseURL: "http://localhost:8008", HealthPath: "/health"},
	{Name: "time-machine", BaseURL: "http://localhost:8009", HealthPath: "/health"},
	{Name: "bridge", BaseURL: "http://localhost:8010", HealthPath: "/health"},
	{Name: "wallet-guard", BaseURL: "http://localhost:8011", HealthPath: "/health"},
	{Name: "reporting", BaseURL: "http://localhost:8012", HealthPath: "/health"},
	{Name: "analytics", BaseURL: "http://localhost:8013", HealthPath: "/health"},
	{Name: "monitoring", BaseURL: "http://localhost:8014", HealthPath: "/health"},
	{Name: "settings", BaseURL: "http://localhost:8015", HealthPath: "/health"},
	{Name: "auth-service", BaseURL: "http://localhost:8016", HealthPath: "/health"},
	{Name: "billing", BaseURL: "http://localhost:8017", HealthPath: "/health"},
	{Name: "integration-hub", BaseURL: "http://localhost:8018", HealthPath: "/health"},
	{Name: "compliance", BaseURL: "http://localhost:8019", HealthPath: "/health"},
	{Name: "ai-orchestrator", BaseURL: "http://localhost:8020", HealthPath: "/health"},
}

// Registry is the immutable route table.
type Registry struct {
	routes map[string]Route
}

// New builds a Registry from the default table with per-service URL
// overrides applied. Override URLs must parse as absolute http(s) URLs.
func New(overrides map[string]string) (*Registry, error) {
	routes := make(map[string]Route, len(defaultRoutes))
	for _, route := range defaultRoutes {
		if override, ok := overrides[route.Name]; ok {
			if err := validateBaseURL(override); err != nil {
				return nil, fmt.Errorf("service %q: %w", route.Name, err)
			}
			route.BaseURL = strings.TrimRight(override, "/")
		}
		routes[route.Name] = route
	}
	return &Registry{routes: routes}, nil
}

// NewFromRoutes builds a Registry from an explicit table. Used by tests.
func NewFromRoutes(routes []Route) *Registry {
	table := make(map[string]Route, len(routes))
	for _, route := range routes {
		table[route.Name] = route
	}
	return &Registry{routes: table}
}

// Lookup resolves a logical service name. The second return is false when
// the name is not in the table.
func (r *Registry) Lookup(name string) (Route, bool) {
	route, ok := r.routes[name]
	return route, ok
}

// Routes returns all routes sorted by name.
func (r *Registry) Routes() []Route {
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of configured services.
func (r *Registry) Len() int { return len(r.routes) }

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must be http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL missing host: %q", raw)
	}
	return nil
}
