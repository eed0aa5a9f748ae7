package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lwoyr/AdsTrendsAPI/pkg/shared/logging"
)

// accessLog emits one structured line per request and feeds the request
// counters.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.logger.Info("request",
			logging.NewFields().
				Method(r.Method).
				Path(r.URL.Path).
				StatusCode(wrapped.Status()).
				ClientIP(r.RemoteAddr).
				Duration(duration).
				ToZap()...)

		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.
				WithLabelValues(r.URL.Path, r.Method, fmt.Sprintf("%d", wrapped.Status())).
				Inc()
			s.metrics.HTTPRequestDuration.
				WithLabelValues(r.URL.Path, r.Method).
				Observe(duration.Seconds())
		}
	})
}

// recoverer converts a handler panic into a 500 response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked",
					logging.NewFields().
						Method(r.Method).
						Path(r.URL.Path).
						Custom("panic", fmt.Sprint(rec)).
						ToZap()...)
				writeDetail(w, http.StatusInternalServerError, "An internal error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
