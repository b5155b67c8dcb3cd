package access

import (
	"net/http"

	"github.com/nbulygin/teamgate/pkg/observability"
	"github.com/nbulygin/teamgate/pkg/pathmatch"
)

// Gate is a named authorization check with a declared path applicability
// config. Routes carry an ordered list of gates; the chain consults each
// gate's config before running it.
type Gate struct {
	Name   string
	Config pathmatch.Config
	Func   func(http.Handler) http.Handler
}

// Chain wraps next with the given gates, outermost first. Each gate is
// checked against its own path config per request; a gate whose config
// excludes the current path is skipped with a warning, since route wiring
// should already guarantee it never sees that path. A failing gate writes
// the response itself and nothing after it runs.
func Chain(logger *observability.Logger, gates ...Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := next
		for i := len(gates) - 1; i >= 0; i-- {
			handler = guarded(logger, gates[i], handler)
		}
		return handler
	}
}

func guarded(logger *observability.Logger, gate Gate, next http.Handler) http.Handler {
	gated := gate.Func(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !gate.Config.ShouldApply(r.URL.Path) {
			logger.WithFields(map[string]interface{}{
				"gate": gate.Name,
				"path": r.URL.Path,
			}).Warn("gate does not apply to path, skipping")
			next.ServeHTTP(w, r)
			return
		}
		gated.ServeHTTP(w, r)
	})
}
