package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routePattern keeps label cardinality bounded: "/code-blocks/{id}" rather
// than one series per block.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
