// Package handlers contains reusable HTTP pieces shared by the API server
// and the worker's ops endpoint.
//
// This package provides:
//   - Health check interfaces and implementations
//   - Operator API key authentication
//   - Security header and request size middleware
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.PingCheck(store))
//	checker.AddCheck("redis", handlers.PingCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Warn("health check failed", zap.String("message", status.Message))
//	}
//
// # Middleware
//
//	// API key authentication; keys may be plain or bcrypt hashes
//	auth := handlers.NewAPIKeyAuth("X-API-Key", cfg.HTTP.OperatorKeys)
//	protected := auth.Middleware(myHandler)
//
//	// Security headers
//	secure := handlers.SecurityHeadersMiddleware(myHandler)
//
//	// Body size limit
//	limited := handlers.RequestSizeLimitMiddleware(1 << 20)(myHandler)
package handlers
