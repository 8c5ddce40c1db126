package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/jobboard/internal/application"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/internal/config"
	"github.com/garnizeh/jobboard/internal/listing"
)

// Services are the domain services the routes dispatch to.
type Services struct {
	Auth         *auth.Service
	Guard        *auth.Guard
	Listings     *listing.Service
	Applications *application.Service
	Ping         func(ctx context.Context) error
}

func SetupRoutes(cfg *config.Config, version, buildTime string, svc Services) (*mux.Router, error) {
	exposeDetail = cfg.IsDevelopment()

	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware(cfg.CORSOrigin))
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{Ping: svc.Ping}
	authHandler := NewAuthHandler(svc.Auth)
	listingsHandler, err := NewListingsHandler(svc.Listings)
	if err != nil {
		return nil, err
	}
	applicationsHandler := NewApplicationsHandler(svc.Applications, cfg.Blob.MaxBytes)
	authed := AuthMiddleware(svc.Guard)

	// Preflight requests only need to reach the CORS middleware.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	apiR := r.PathPrefix("/api").Subrouter()

	// Open endpoints
	apiR.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	apiR.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")

	authR := apiR.PathPrefix("/auth").Subrouter()
	if cfg.AuthRateLimit > 0 {
		authR.Use(NewClientLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst).Middleware)
	}
	authR.HandleFunc("/register", authHandler.Register).Methods("POST")
	authR.HandleFunc("/login", authHandler.Login).Methods("POST")

	// Jobs
	apiR.HandleFunc("/jobs", listingsHandler.List).Methods("GET")
	apiR.Handle("/jobs", authed(http.HandlerFunc(listingsHandler.Create))).Methods("POST")
	apiR.Handle("/jobs/my-postings", authed(http.HandlerFunc(listingsHandler.ListMine))).Methods("GET")
	apiR.HandleFunc("/jobs/{id:[0-9]+}", listingsHandler.Get).Methods("GET")
	apiR.Handle("/jobs/{id:[0-9]+}", authed(http.HandlerFunc(listingsHandler.Update))).Methods("PUT")
	apiR.Handle("/jobs/{id:[0-9]+}", authed(http.HandlerFunc(listingsHandler.Delete))).Methods("DELETE")

	// Applications; all protected
	appR := apiR.PathPrefix("/applications").Subrouter()
	appR.Use(authed)
	appR.HandleFunc("", applicationsHandler.Create).Methods("POST")
	appR.HandleFunc("/my-applications", applicationsHandler.ListMine).Methods("GET")
	appR.HandleFunc("/job/{jobId:[0-9]+}", applicationsHandler.ListForJob).Methods("GET")
	appR.HandleFunc("/{id:[0-9]+}", applicationsHandler.Get).Methods("GET")
	appR.HandleFunc("/{id:[0-9]+}/resume", applicationsHandler.Resume).Methods("GET")

	return r, nil
}
