package perm

// defaultTable is used for roles the server did not (or would not) return.
var defaultTable = map[string]Set{
	"role-admin": allOf(AllKeys...),
	"role-tecnico": allOf(
		Dashboard, Shipments, Invoices, Expenses, Catalogs,
		Users, Roles, AuditLog, Settings, Reports, CompanyInfo,
	),
	"role-operador": allOf(Dashboard, Shipments, Invoices, Catalogs),
	"role-contador": allOf(Dashboard, Invoices, Expenses, Accounting, Reports),
}

func allOf(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = true
	}

	return s
}

// DefaultTable resolves from the built-in per-role table.
type DefaultTable struct{}

// Resolve returns a copy of the built-in set for roleID.
func (DefaultTable) Resolve(roleID string) (Set, bool) {
	set, ok := defaultTable[roleID]
	if !ok {
		return nil, false
	}

	return set.Clone(), true
}
