package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teddyfriends/loyalty/internal/services"
)

// POST /api/families
func CreateFamily(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in services.NewFamily
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		f, err := svc.CreateFamily(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

// GET /api/families/{id}
func GetFamily(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := svc.FindFamily(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// GET /api/families/by-code/{clientCode}
func GetFamilyByClientCode(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := svc.FindFamilyByClientCode(r.Context(), chi.URLParam(r, "clientCode"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}
