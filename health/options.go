package health

import (
	"github.com/go-chi/chi/v5"
)

type opts struct {
	ChiMux          *chi.Mux
	ReadinessChecks map[string]func() error
}

type Opt func(*opts)

func WithChiMux(mux *chi.Mux) Opt {
	return func(o *opts) {
		o.ChiMux = mux
	}
}

// WithReadinessCheck registers an upstream-dependency probe; a failing check
// flips /readiness to 503 without touching liveness.
func WithReadinessCheck(name string, check func() error) Opt {
	return func(o *opts) {
		if o.ReadinessChecks == nil {
			o.ReadinessChecks = map[string]func() error{}
		}
		o.ReadinessChecks[name] = check
	}
}
