package api

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// importsHandler accepts a citizens dataset and persists it under a fresh
// import id.
func (rtr *Routing) importsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireJson(r); err != nil {
			rtr.writeError(w, err)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		citizens, err := rtr.Validator.ValidateImport(body)
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		importID, err := rtr.Store.CreateImport(r.Context(), citizens)
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		log.Info().Int64("import_id", importID).Int("citizens", len(citizens)).Msg("Import accepted")

		rtr.respond(w, r, http.StatusCreated, importResponse{ImportID: importID})
	}
}
