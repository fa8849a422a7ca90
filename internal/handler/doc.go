// Package handler provides the HTTP surface of the Qola registration API.
//
// Handlers are thin: they decode the request, call the service, and render
// either a data envelope or an RFC 9457 Problem Details body.
//
// # Routes
//
//   - POST /v1/auth/register: run a registration (201 on success)
//   - GET /health: ping the identity and document stores (503 when either fails)
//   - GET /metrics: Prometheus exposition
//
// # Response Format
//
//   - WriteData: success envelope {"data": ...}
//   - WriteError: Problem Details with a stable detail message and code
//
// Registration failures are translated in one place, MapRegistrationError,
// so every outcome has exactly one status code and message.
//
// # Example Usage
//
//	router := handler.NewRouter(handler.RouterConfig{
//	    Registration: handler.NewRegistrationHandler(registrationService, 3),
//	    Health:       handler.NewHealthHandler(checks, logger),
//	})
package handler
