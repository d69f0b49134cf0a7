package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// routeInfo is filled in by Annotate once mux has matched the request, so
// the outer Logging middleware can report it.
type routeInfo struct {
	route      string
	campaignID string
}

type routeInfoKey struct{}

// Logging logs each request with its route and campaign id; probe and
// scrape traffic only at debug.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &routeInfo{route: "unmatched"}
		r = r.WithContext(context.WithValue(r.Context(), routeInfoKey{}, info))
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			level = slog.LevelDebug
		}
		attrs := []any{
			"method", r.Method,
			"route", info.route,
			"status", sw.status,
			"duration", time.Since(start),
		}
		if info.campaignID != "" {
			attrs = append(attrs, "campaign_id", info.campaignID)
		}
		slog.Log(r.Context(), level, "http request", attrs...)
	})
}

// Annotate records the matched route template and campaign id for Logging.
func Annotate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(routeInfoKey{}).(*routeInfo); ok {
			info.route = routeLabel(r)
			info.campaignID = mux.Vars(r)["id"]
		}
		next.ServeHTTP(w, r)
	})
}

func Metrics(counter *prometheus.CounterVec) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			counter.WithLabelValues(routeLabel(r), strconv.Itoa(sw.status)).Inc()
		})
	}
}

func routeLabel(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}
