package api

import (
	"io"
	"net/http"
)

func (rtr *Routing) citizensHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		importID, err := pathID(r, "importID")
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		citizens, err := rtr.Store.Citizens(r.Context(), importID)
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		rtr.respond(w, r, http.StatusOK, citizens)
	}
}

// patchCitizenHandler applies a partial update under the import's lock and
// drops the import's cached statistics.
func (rtr *Routing) patchCitizenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		importID, err := pathID(r, "importID")
		if err != nil {
			rtr.writeError(w, err)
			return
		}
		citizenID, err := pathID(r, "citizenID")
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		if err := requireJson(r); err != nil {
			rtr.writeError(w, err)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		patch, err := rtr.Validator.ValidatePatch(body)
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		ctx := r.Context()
		if err := rtr.Lock.Acquire(ctx, importKey(importID)); err != nil {
			rtr.writeError(w, err)
			return
		}
		defer func() { _ = rtr.Lock.Release(ctx, importKey(importID)) }()

		citizen, err := rtr.Store.PatchCitizen(ctx, importID, citizenID, patch)
		if err != nil {
			rtr.writeError(w, err)
			return
		}

		if err := rtr.Cache.Invalidate(ctx, importID); err != nil {
			rtr.writeError(w, err)
			return
		}

		rtr.respond(w, r, http.StatusOK, citizen)
	}
}
