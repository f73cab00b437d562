package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vortexdex/dexproxy/events"
	"github.com/vortexdex/dexproxy/lifecycle"
	"github.com/vortexdex/dexproxy/log"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
)

// HealthFunc reports whether the venue behind the proxy is reachable. A nil
// function means always ready.
type HealthFunc func() error

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host    string
	Port    int
	Manager *lifecycle.Manager
	Events  *events.Dispatcher // Optional: nil disables the websocket stream
	Health  HealthFunc         // Optional: readiness probe for /public/status
}

// API type represents the API HTTP server fronting the request lifecycle
// manager.
type API struct {
	router  *chi.Mux
	manager *lifecycle.Manager
	events  *events.Dispatcher
	health  HealthFunc
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Manager == nil {
		return nil, fmt.Errorf("missing lifecycle manager instance")
	}
	a := &API{
		manager: conf.Manager,
		events:  conf.Events,
		health:  conf.Health,
	}
	a.initRouter()
	go func() {
		log.Infow("Starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	// trading endpoints
	log.Infow("register handler", "endpoint", ApproveTokenEndpoint, "method", "POST")
	a.router.Post(ApproveTokenEndpoint, a.approveToken)
	log.Infow("register handler", "endpoint", WithdrawEndpoint, "method", "POST")
	a.router.Post(WithdrawEndpoint, a.withdraw)
	log.Infow("register handler", "endpoint", TransferEndpoint, "method", "POST")
	a.router.Post(TransferEndpoint, a.transfer)
	log.Infow("register handler", "endpoint", WrapUnwrapEndpoint, "method", "POST")
	a.router.Post(WrapUnwrapEndpoint, a.wrapUnwrap)
	log.Infow("register handler", "endpoint", InsertOrderEndpoint, "method", "POST")
	a.router.Post(InsertOrderEndpoint, a.insertOrder)
	log.Infow("register handler", "endpoint", AmendRequestEndpoint, "method", "POST")
	a.router.Post(AmendRequestEndpoint, a.amendRequest)
	log.Infow("register handler", "endpoint", CancelRequestEndpoint, "method", "DELETE")
	a.router.Delete(CancelRequestEndpoint, a.cancelRequest)
	log.Infow("register handler", "endpoint", CancelAllEndpoint, "method", "DELETE")
	a.router.Delete(CancelAllEndpoint, a.cancelAll)
	// public endpoints
	log.Infow("register handler", "endpoint", OpenRequestsEndpoint, "method", "GET")
	a.router.Get(OpenRequestsEndpoint, a.openRequests)
	log.Infow("register handler", "endpoint", RequestStatusEndpoint, "method", "GET")
	a.router.Get(RequestStatusEndpoint, a.requestStatus)
	log.Infow("register handler", "endpoint", StatusEndpoint, "method", "GET")
	a.router.Get(StatusEndpoint, a.status)
	if a.events != nil {
		log.Infow("register handler", "endpoint", WebsocketEndpoint, "method", "GET")
		a.router.Get(WebsocketEndpoint, a.handleWebsocket)
	}
}
