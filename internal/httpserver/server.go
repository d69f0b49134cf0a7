package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campaignd/internal/observability"
)

type Server struct {
	Mux *mux.Router
}

func New() *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Use(Annotate, Metrics(observability.APIRequests))
	return &Server{Mux: r}
}

func (s *Server) Handler() http.Handler {
	return Logging(s.Mux)
}
