package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/teddyfriends/loyalty/internal/services"
)

const qrSize = 256

// GET /qr/family/{familyID}.png
//
// Each request signs a fresh family_visit payload; staff scan it at the desk.
func FamilyQRPNG(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qr, err := svc.IssueFamilyQR(r.Context(), chi.URLParam(r, "familyID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writePNG(w, qr.Payload)
	}
}

// GET /qr/voucher/{voucherID}.png
func VoucherQRPNG(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.FindVoucherByID(r.Context(), chi.URLParam(r, "voucherID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writePNG(w, v.QRData)
	}
}

func writePNG(w http.ResponseWriter, payload string) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "failed to generate qr", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
