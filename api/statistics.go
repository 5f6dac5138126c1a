package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/zhumanklv/yandex-academy-task/stats"

	gotel "github.com/zhumanklv/yandex-academy-task/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	birthdaysKind   = "birthdays"
	percentilesKind = "percentile_age"
)

// birthdaysHandler answers how many presents each citizen buys per month.
// Responses are cached per import until the import changes.
func (rtr *Routing) birthdaysHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		importID, err := pathID(r, "importID")
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		var cached map[string][]stats.CitizenPresents
		if hit := rtr.cacheLookup(r.Context(), birthdaysKind, importID, &cached); hit {
			rtr.respond(w, r, http.StatusOK, cached)
			return
		}

		result, err := rtr.computeStatistic(r.Context(), birthdaysKind, importID,
			func(ctx context.Context) (interface{}, error) {
				citizens, err := rtr.Store.Citizens(ctx, importID)
				if err != nil {
					return nil, err
				}
				return stats.BirthdaysByMonth(citizens), nil
			})
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		rtr.respond(w, r, http.StatusOK, result)
	}
}

// percentileAgeHandler answers p50/p75/p99 of citizens' ages per town.
func (rtr *Routing) percentileAgeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		importID, err := pathID(r, "importID")
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		var cached []stats.TownPercentiles
		if hit := rtr.cacheLookup(r.Context(), percentilesKind, importID, &cached); hit {
			rtr.respond(w, r, http.StatusOK, cached)
			return
		}

		result, err := rtr.computeStatistic(r.Context(), percentilesKind, importID,
			func(ctx context.Context) (interface{}, error) {
				citizens, err := rtr.Store.Citizens(ctx, importID)
				if err != nil {
					return nil, err
				}
				return stats.TownAgePercentiles(citizens, rtr.now()), nil
			})
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		rtr.respond(w, r, http.StatusOK, result)
	}
}

// computeStatistic runs the aggregation under the import's lock, so a
// concurrent patch cannot interleave, and stores the result for later reads.
func (rtr *Routing) computeStatistic(ctx context.Context, kind string, importID int64,
	compute func(ctx context.Context) (interface{}, error)) (interface{}, error) {

	if rtr.AppConfig.Tracing.Enabled {
		var span trace.Span
		ctx, span = gotel.GetTracer(ctx).Start(ctx, "compute-"+kind, gotel.ServerOptions)
		defer span.End()
	}

	if err := rtr.Lock.Acquire(ctx, importKey(importID)); err != nil {
		return nil, err
	}
	defer func() { _ = rtr.Lock.Release(ctx, importKey(importID)) }()

	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if err := rtr.Cache.Put(ctx, kind, importID, result); err != nil {
		log.Warn().Err(err).Str("kind", kind).Int64("import_id", importID).Msg("Statistics cache write failed")
	}

	return result, nil
}

func (rtr *Routing) cacheLookup(ctx context.Context, kind string, importID int64, out interface{}) bool {
	hit, err := rtr.Cache.Get(ctx, kind, importID, out)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Int64("import_id", importID).Msg("Statistics cache read failed")
		return false
	}
	return hit
}
