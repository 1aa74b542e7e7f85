package perm

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_Allows(t *testing.T) {
	var nilSet Set
	assert.False(t, nilSet.Allows(Shipments))

	s := Set{Shipments: true, Invoices: false}
	assert.True(t, s.Allows(Shipments))
	assert.False(t, s.Allows(Invoices))
	assert.False(t, s.Allows("unknown"))
}

func TestSet_CloneIsIndependent(t *testing.T) {
	s := Set{Shipments: true}
	c := s.Clone()
	c[Invoices] = true

	assert.False(t, s.Allows(Invoices))

	var nilSet Set
	assert.NotNil(t, nilSet.Clone())
}

func TestSet_Granted(t *testing.T) {
	s := Set{Roles: true, Catalogs: true, Users: false}
	assert.Equal(t, []string{Catalogs, Roles}, s.Granted())
}

func TestChain_FetchedRolePreferredOverDefault(t *testing.T) {
	fetched := RoleTable{"role-admin": {Shipments: true}}
	chain := NewChain(nil, fetched, DefaultTable{})

	got := chain.Resolve("role-admin")
	assert.Equal(t, Set{Shipments: true}, got)
	assert.False(t, got.Allows(Accounting), "fetched record wins even when narrower")
}

func TestChain_FallsBackToDefaultTable(t *testing.T) {
	chain := NewChain(nil, RoleTable{}, DefaultTable{})

	got := chain.Resolve("role-contador")
	assert.True(t, got.Allows(Accounting))
	assert.False(t, got.Allows(Users))
}

func TestChain_UnknownRoleDeniesAll(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	chain := NewChain(logger, RoleTable{"role-admin": {Roles: true}}, DefaultTable{})

	var got Set
	require.NotPanics(t, func() { got = chain.Resolve("role-fantasma") })
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "role-fantasma")
}

func TestChain_Deterministic(t *testing.T) {
	chain := NewChain(nil, RoleTable{"r": {Roles: true}}, DefaultTable{})

	for range 10 {
		assert.Equal(t, Set{Roles: true}, chain.Resolve("r"))
	}
}

func TestChain_NilEntriesAndNilSets(t *testing.T) {
	chain := NewChain(nil, nil, RoleTable{"r": nil})

	got := chain.Resolve("r")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestChain_ResolverFunc(t *testing.T) {
	calls := 0
	first := ResolverFunc(func(string) (Set, bool) {
		calls++
		return nil, false
	})

	chain := NewChain(nil, first, DefaultTable{})
	assert.True(t, chain.Resolve("role-operador").Allows(Shipments))
	assert.Equal(t, 1, calls)
}

func TestResolvedSetsDoNotAlias(t *testing.T) {
	table := RoleTable{"r": {Roles: true}}
	s, ok := table.Resolve("r")
	require.True(t, ok)
	s[Users] = true

	again, _ := table.Resolve("r")
	assert.False(t, again.Allows(Users))

	d, _ := DefaultTable{}.Resolve("role-operador")
	d[Accounting] = true

	d2, _ := DefaultTable{}.Resolve("role-operador")
	assert.False(t, d2.Allows(Accounting))
}

func TestTier(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		role  string
		want  bool
	}{
		{"default admin", nil, "role-admin", true},
		{"default tecnico", nil, "role-tecnico", true},
		{"default operador", nil, "role-operador", false},
		{"configured", []string{"role-contador"}, "role-contador", true},
		{"configured excludes default", []string{"role-contador"}, "role-admin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewTier(tt.roles).HasFullAccess(tt.role))
		})
	}

	var zero Tier
	assert.True(t, zero.HasFullAccess("role-admin"))
}

func TestDefaultTable_Admin(t *testing.T) {
	s, ok := DefaultTable{}.Resolve("role-admin")
	require.True(t, ok)

	for _, k := range AllKeys {
		assert.True(t, s.Allows(k), k)
	}
}
