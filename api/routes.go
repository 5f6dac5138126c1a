package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/riandyrn/otelchi"
	"github.com/rs/zerolog/log"
	"github.com/zhumanklv/yandex-academy-task/config"
	"github.com/zhumanklv/yandex-academy-task/validation"
)

const (
	applicationJSON = "application/json"
)

type Routing struct {
	ServerName   string
	ParentRouter chi.Router

	AppConfig config.ApplicationConfiguration

	Store     CitizenStore
	Lock      Locker
	Cache     StatsCache
	Validator *validation.Validator

	// Now anchors age calculations; nil means wall clock.
	Now func() time.Time
}

func (rtr *Routing) SetupFunctionalRoutes(r chi.Router) error {
	if e := rtr.enableOTelForRouter(r); e != nil {
		return e
	}

	r.Post("/imports", rtr.importsHandler())
	r.Get("/imports/{importID}/citizens", rtr.citizensHandler())
	r.Patch("/imports/{importID}/citizens/{citizenID}", rtr.patchCitizenHandler())
	r.Get("/imports/{importID}/citizens/birthdays", rtr.birthdaysHandler())
	r.Get("/imports/{importID}/towns/stat/percentile/age", rtr.percentileAgeHandler())

	return nil
}

func (rtr *Routing) respond(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	queries := r.URL.Query()
	pretty := overrideBooleanDefault(queries.Get("pretty"), rtr.AppConfig.Defaults.PrettyPrintJson)
	logResponses := overrideBooleanDefault(queries.Get("logResponses"), rtr.AppConfig.Defaults.LogResponses)

	bytes, err := marshalResponseJson(envelope{Data: payload}, pretty)
	if err != nil {
		rtr.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", applicationJSON)
	w.WriteHeader(status)
	_, _ = w.Write(bytes)

	if logResponses {
		log.Debug().Msgf("Response: %s", string(bytes))
	}
}

func marshalResponseJson(val interface{}, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(val, "", "  ")
	}
	return json.Marshal(val)
}

func (rtr *Routing) enableOTelForRouter(r chi.Router) error {
	if !rtr.AppConfig.Tracing.Enabled {
		return nil
	}

	if rtr.ServerName == "" || rtr.ParentRouter == nil {
		return errors.New("OTel not configured")
	}

	r.Use(otelchi.Middleware(rtr.ServerName, otelchi.WithChiRoutes(rtr.ParentRouter)))

	log.Info().Msgf("OpenTelemetry trace is enabled")
	return nil
}

func (rtr *Routing) now() time.Time {
	if rtr.Now != nil {
		return rtr.Now()
	}
	return time.Now().UTC()
}

// pathID parses a numeric path parameter; anything non-numeric means the
// resource cannot exist.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 0 {
		return 0, errUnknownResource
	}
	return id, nil
}

func requireJson(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), applicationJSON) {
		return &validation.Error{Reason: "Content-Type must be application/json"}
	}
	return nil
}

func importKey(importID int64) string {
	return strconv.FormatInt(importID, 10)
}

func overrideBooleanDefault(queryValue string, defaultVal bool) bool {
	reqVal := strings.ToLower(queryValue)
	if reqVal == "true" {
		return true
	} else if reqVal == "false" {
		return false
	}
	return defaultVal
}
