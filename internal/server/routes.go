package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/oliullah100/kolmo/internal/auth"
	"github.com/oliullah100/kolmo/internal/message"
	"github.com/oliullah100/kolmo/internal/metrics"
	"github.com/oliullah100/kolmo/internal/realtime"
)

// Routes bundles what SetupRoutes mounts. Messages is optional; without it
// the REST message API is not served.
type Routes struct {
	Manager  *realtime.Manager
	Messages *message.Handler
	Verifier auth.Verifier
	Logger   zerolog.Logger
}

// SetupRoutes builds the application router wrapped in HTTP metrics.
func SetupRoutes(rt Routes) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", HealthzHandler(rt.Manager)).Methods(http.MethodGet)
	r.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", rt.Manager)

	if rt.Messages != nil {
		api := r.PathPrefix("/api/v1/messages").Subrouter()
		api.Use(auth.Middleware(rt.Verifier, rt.Logger))
		rt.Messages.Register(api)
	}

	return metrics.InstrumentHandler(r)
}
