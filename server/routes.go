package server

import (
	"net/http"

	"github.com/jrsteele09/go-role-sessions/guard"
	"github.com/jrsteele09/go-role-sessions/namespace"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteIndex, s.IndexHandler())

	// LOGIN
	for _, ns := range namespace.All {
		s.RegisterRouteHandler("GET "+ns.LoginPath(), ChainMiddleware(s.LoginPageHandler(ns), s.HTMLMiddleWare()...))
		s.RegisterRouteHandler("POST "+ns.LoginPath(), ChainMiddleware(s.LoginSubmissionHandler(ns), s.HTMLMiddleWare()...))
	}
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// Guarded dashboards
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.RequireSession(guard.RoleGuard(namespace.User)))...))
	s.RegisterRouteHandler("GET "+RouteAgencyDash, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.RequireSession(guard.RoleGuard(namespace.Agency)))...))
	s.RegisterRouteHandler("GET "+RouteEmployeeDash, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.RequireSession(guard.RoleGuard(namespace.Employee)))...))
	s.RegisterRouteHandler("GET "+RouteAdminDashboard, ChainMiddleware(s.DashboardHandler(), s.HTMLMiddleWare(s.RequireSession(guard.AdminGuard()))...))

	// Impersonation hand-off
	for _, route := range []string{RouteImpersonate, RouteAgencyImpersonate, RouteEmployeeImpersonate} {
		s.RegisterRouteHandler("GET "+route, ChainMiddleware(s.ImpersonateHandler(), s.HTMLMiddleWare()...))
	}

	// API routes
	s.RegisterRouteHandler("GET "+RouteSessions, ChainMiddleware(s.SessionsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteSessions, ChainMiddleware(func(http.ResponseWriter, *http.Request) {}, s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())

	if s.backendHandler != nil {
		s.RegisterRouteHandler(RouteBackend+"/", http.StripPrefix(RouteBackend, s.backendHandler))
	}
}
