package namespace_test

import (
	"testing"

	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, ns := range namespace.All {
		got, ok := namespace.Parse(" " + string(ns) + " ")
		require.True(t, ok)
		require.Equal(t, ns, got)
	}

	_, ok := namespace.Parse("business")
	require.False(t, ok)

	got, ok := namespace.Parse("AGENCY")
	require.True(t, ok)
	require.Equal(t, namespace.Agency, got)
}

func TestFromAlias(t *testing.T) {
	cases := map[string]namespace.Namespace{
		"agency":       namespace.Agency,
		"agency_admin": namespace.Agency,
		"Employee":     namespace.Employee,
		"employee-ops": namespace.Employee,
		"user":         namespace.User,
		"business":     namespace.User,
		"admin":        namespace.User,
		"":             namespace.User,
	}
	for alias, want := range cases {
		t.Run(alias, func(t *testing.T) {
			require.Equal(t, want, namespace.FromAlias(alias))
		})
	}
}

func TestFromPath(t *testing.T) {
	t.Run("agency prefix", func(t *testing.T) {
		ns, ok := namespace.FromPath("/agency/impersonate")
		require.True(t, ok)
		require.Equal(t, namespace.Agency, ns)
	})

	t.Run("employee prefix", func(t *testing.T) {
		ns, ok := namespace.FromPath("/employee")
		require.True(t, ok)
		require.Equal(t, namespace.Employee, ns)
	})

	t.Run("prefix must be a whole segment", func(t *testing.T) {
		ns, ok := namespace.FromPath("/agencyfoo/impersonate")
		require.False(t, ok)
		require.Equal(t, namespace.User, ns)
	})

	t.Run("no prefix", func(t *testing.T) {
		ns, ok := namespace.FromPath("/impersonate")
		require.False(t, ok)
		require.Equal(t, namespace.User, ns)
	})
}

func TestPaths(t *testing.T) {
	require.Equal(t, "/dashboard", namespace.User.DashboardPath())
	require.Equal(t, "/login", namespace.User.LoginPath())
	require.Equal(t, "/agency/dashboard", namespace.Agency.DashboardPath())
	require.Equal(t, "/employee/login", namespace.Employee.LoginPath())
	require.Equal(t, "/admin/login", namespace.Admin.LoginPath())
}
