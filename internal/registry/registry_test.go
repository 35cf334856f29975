package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAppliesOverrides(t *testing.T) {
	reg, err := New(map[string]string{
		"scanner":      "http://scanner.internal:9000",
		"wallet-guard": "https://wallet-guard.internal/",
	})
	require.NoError(t, err)
	require.Equal(t, 20, reg.Len())

	route, ok := reg.Lookup("scanner")
	require.True(t, ok)
	require.Equal(t, "http://scanner.internal:9000", route.BaseURL)

	route, ok = reg.Lookup("wallet-guard")
	require.True(t, ok)
	require.Equal(t, "https://wallet-guard.internal", route.BaseURL, "trailing slash trimmed")

	route, ok = reg.Lookup("forensics")
	require.True(t, ok)
	require.Equal(t, "http://localhost:8005", route.BaseURL, "default preserved")
}

func TestNewRejectsBadOverrides(t *testing.T) {
	for _, bad := range []string{"not-a-url", "ftp://x.example", "http://"} {
		_, err := New(map[string]string{"scanner": bad})
		require.Error(t, err, "override %q should be rejected", bad)
	}
}

func TestLookupUnknownService(t *testing.T) {
	reg, err := New(nil)
	require.NoError(t, err)

	_, ok := reg.Lookup("no-such-service")
	require.False(t, ok)
}

func TestRoutesSorted(t *testing.T) {
	reg := NewFromRoutes([]Route{
		{Name: "zeta", BaseURL: "http://z"},
		{Name: "alpha", BaseURL: "http://a"},
	})
	routes := reg.Routes()
	require.Equal(t, "alpha", routes[0].Name)
	require.Equal(t, "zeta", routes[1].Name)
}
