package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/zhumanklv/yandex-academy-task/lock"
	"github.com/zhumanklv/yandex-academy-task/storage"
	"github.com/zhumanklv/yandex-academy-task/validation"
)

// errUnknownResource covers unparseable path ids: such a resource cannot exist.
var errUnknownResource = errors.New("unknown resource")

func statusForError(err error) int {
	var vErr *validation.Error

	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnknownRelative):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownResource),
		errors.Is(err, storage.ErrImportNotFound),
		errors.Is(err, storage.ErrCitizenNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (rtr *Routing) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)

	w.Header().Set("Content-Type", applicationJSON)
	w.WriteHeader(status)

	info := map[string]interface{}{"message": err.Error()}
	_ = json.NewEncoder(w).Encode(info)

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Stack().Msg("Response error")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
}
