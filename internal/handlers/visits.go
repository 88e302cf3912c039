package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teddyfriends/loyalty/internal/services"
)

// POST /api/visits/issue-code
func IssueCode(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			FamilyID   string `json:"familyId"`
			TTLMinutes int    `json:"ttlMinutes"`
			StaffID    string `json:"staffId"`
		}
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		if in.TTLMinutes < 0 {
			badRequest(w, "ttlMinutes must not be negative")
			return
		}
		code, err := svc.IssueCode(r.Context(), strings.TrimSpace(in.FamilyID),
			time.Duration(in.TTLMinutes)*time.Minute, optional(staffID(r, in.StaffID)))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, code)
	}
}

// POST /api/visits/confirm
func ConfirmVisit(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Code      string `json:"code"`
			QRPayload string `json:"qrPayload"`
			FamilyID  string `json:"familyId"`
			Source    string `json:"source"`
			StaffID   string `json:"staffId"`
			Note      string `json:"note"`
		}
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		src, err := services.ParseSource(in.Source)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := svc.ConfirmVisit(r.Context(), services.ConfirmRequest{
			Code:      in.Code,
			QRPayload: in.QRPayload,
			FamilyID:  in.FamilyID,
			Source:    src,
			StaffID:   optional(staffID(r, in.StaffID)),
			Note:      optional(in.Note),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /api/visits/codes/stats
func CodesStats(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.CodesStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /api/visits/codes/{familyID}
func ActiveCodes(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, err := svc.ActiveCodes(r.Context(), chi.URLParam(r, "familyID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
	}
}

// GET /api/visits/stats?from=&to=
func VisitStats(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := parseTimeParam(r, "from", false)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		to, err := parseTimeParam(r, "to", true)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		st, err := svc.VisitStats(r.Context(), from, to)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /api/families/{id}/visits?limit=
func FamilyVisits(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		visits, err := svc.FamilyVisits(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"visits": visits})
	}
}

// parseTimeParam accepts RFC 3339 or a plain date. A plain "to" date covers
// the whole day.
func parseTimeParam(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, &paramError{name: name, value: raw}
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

type paramError struct{ name, value string }

func (e *paramError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value) + ": use YYYY-MM-DD or RFC 3339"
}
