package server

// Route path constants. Namespace-prefixed routes are derived from
// namespace.Namespace.LoginPath and DashboardPath.
const (
	RouteIndex       = "/{$}"
	RouteLogout      = "/logout"
	RouteImpersonate = "/impersonate"
	RouteHealth      = "/healthz"
	RouteMetrics     = "/metrics"
	RouteSessions    = "/api/sessions"
	RouteBackend     = "/backend"

	RouteDashboard      = "/dashboard"
	RouteAgencyDash     = "/agency/dashboard"
	RouteEmployeeDash   = "/employee/dashboard"
	RouteAdminDashboard = "/admin/dashboard"

	RouteAgencyImpersonate   = "/agency/impersonate"
	RouteEmployeeImpersonate = "/employee/impersonate"
)

// Cookie names.
const (
	// durableCookieName identifies a browser's durable storage.
	durableCookieName = "durable_id"
	// tabCookieName identifies one tab's storage; it is a session cookie.
	tabCookieName = "tab_id"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)
