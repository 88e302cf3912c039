package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teddyfriends/loyalty/internal/services"
)

// GET /api/loyalty/status/{familyID}
func LoyaltyStatus(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.LoyaltyStatus(r.Context(), chi.URLParam(r, "familyID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /api/loyalty/stats
func LoyaltyStats(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.LoyaltyStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// POST /api/loyalty/voucher/generate
func GenerateVoucher(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			FamilyID string `json:"familyId"`
		}
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		v, err := svc.IssueVoucher(r.Context(), strings.TrimSpace(in.FamilyID))
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if v.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, v)
	}
}

// POST /api/loyalty/voucher/redeem
func RedeemVoucher(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			VoucherCode string `json:"voucherCode"`
			StaffID     string `json:"staffId"`
		}
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		v, err := svc.RedeemVoucher(r.Context(), strings.ToUpper(strings.TrimSpace(in.VoucherCode)), staffID(r, in.StaffID))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// POST /api/vouchers/redeem-qr
func RedeemVoucherQR(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			QRPayload string `json:"qrPayload"`
			StaffID   string `json:"staffId"`
		}
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		sid := staffID(r, in.StaffID)
		if sid == "" {
			badRequest(w, "staffId is required")
			return
		}
		v, err := svc.RedeemVoucherQR(r.Context(), in.QRPayload, sid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /api/vouchers/stats
func VoucherStats(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.VoucherStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// POST /api/maintenance/cleanup-codes
func CleanupCodes(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.CleanupExpiredCodes(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
	}
}

// POST /api/maintenance/expire-vouchers
func ExpireVouchers(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.MarkExpiredVouchers(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
	}
}
