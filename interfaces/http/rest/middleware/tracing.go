package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"topicgraph/pkg/observability"
)

// Tracing opens a trace segment per request so oracle and store calls made
// while serving it nest underneath
func Tracing(tracer *observability.Tracer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !tracer.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, seg := tracer.StartSegment(r.Context(), "http")
			defer seg.Close(nil)

			tracer.AddAnnotation(ctx, "method", r.Method)
			tracer.AddAnnotation(ctx, "path", r.URL.Path)
			if id := middleware.GetReqID(r.Context()); id != "" {
				tracer.AddAnnotation(ctx, "request_id", id)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
