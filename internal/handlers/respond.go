package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/services"
)

const maxBody = 1 << 20

type errorBody struct {
	Error   services.Kind        `json:"error"`
	Message string               `json:"message"`
	Status  models.VoucherStatus `json:"status,omitempty"`
}

var kindStatus = map[services.Kind]int{
	services.KindNotFound:         http.StatusNotFound,
	services.KindConflict:         http.StatusConflict,
	services.KindExpired:          http.StatusGone,
	services.KindRateLimited:      http.StatusTooManyRequests,
	services.KindInvalidSignature: http.StatusUnauthorized,
	services.KindInvalidRequest:   http.StatusBadRequest,
	services.KindConsentRequired:  http.StatusForbidden,
	services.KindInternal:         http.StatusInternalServerError,
}

var kindText = map[services.Kind]string{
	services.KindNotFound:         "Not found.",
	services.KindConflict:         "Already used.",
	services.KindExpired:          "Expired.",
	services.KindRateLimited:      "Too soon since the last visit.",
	services.KindInvalidSignature: "Invalid QR code.",
	services.KindInvalidRequest:   "Invalid request.",
	services.KindConsentRequired:  "Marketing consent required.",
	services.KindInternal:         "Something went wrong.",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// writeError maps a service error to its HTTP status and JSON body. Internal
// causes are logged, never returned.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: services.KindInternal, Message: kindText[services.KindInternal]}
	var e *services.Error
	if errors.As(err, &e) {
		body.Error = e.Kind
		body.Status = e.Status
		body.Message = e.Message
		if body.Message == "" || e.Kind == services.KindInternal {
			body.Message = kindText[e.Kind]
		}
	}
	if body.Error == services.KindInternal {
		log.Printf("internal error: %v", err)
	}
	writeJSON(w, kindStatus[body.Error], body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: services.KindInvalidRequest, Message: msg})
}

// decode reads a JSON body into dst; an empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
