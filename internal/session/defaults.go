package session

import "github.com/despacho-app/despacho/internal/api"

// defaultChart stands in when an elevated identity's chart of accounts comes
// back empty or denied.
var defaultChart = []api.Account{
	{ID: "default-1", Code: "1", Name: "Activo", Type: "activo"},
	{ID: "default-1.1", Code: "1.1", Name: "Activo corriente", Type: "activo", ParentID: "default-1"},
	{ID: "default-1.1.01", Code: "1.1.01", Name: "Caja", Type: "activo", ParentID: "default-1.1"},
	{ID: "default-1.1.02", Code: "1.1.02", Name: "Bancos", Type: "activo", ParentID: "default-1.1"},
	{ID: "default-1.1.03", Code: "1.1.03", Name: "Cuentas por cobrar", Type: "activo", ParentID: "default-1.1"},
	{ID: "default-2", Code: "2", Name: "Pasivo", Type: "pasivo"},
	{ID: "default-2.1", Code: "2.1", Name: "Cuentas por pagar", Type: "pasivo", ParentID: "default-2"},
	{ID: "default-3", Code: "3", Name: "Patrimonio", Type: "patrimonio"},
	{ID: "default-4", Code: "4", Name: "Ingresos", Type: "ingreso"},
	{ID: "default-4.1", Code: "4.1", Name: "Ingresos por envíos", Type: "ingreso", ParentID: "default-4"},
	{ID: "default-5", Code: "5", Name: "Gastos", Type: "gasto"},
	{ID: "default-5.1", Code: "5.1", Name: "Gastos operativos", Type: "gasto", ParentID: "default-5"},
}

// DefaultChartOfAccounts returns a fresh copy of the built-in chart.
func DefaultChartOfAccounts() []api.Account {
	out := make([]api.Account, len(defaultChart))
	copy(out, defaultChart)

	return out
}

// OfflineCompanyInfo is shown when the company profile cannot be fetched.
func OfflineCompanyInfo() *api.CompanyInfo {
	return &api.CompanyInfo{
		Name:  "Despacho",
		Email: "soporte@despacho.app",
	}
}
