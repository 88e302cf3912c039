package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/events"
	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/signature"
)

const voucherCodePrefix = "TF-"

type IssuedVoucher struct {
	VoucherID  string    `json:"voucherId"`
	Code       string    `json:"code"`
	ValidUntil time.Time `json:"validUntil"`
	// Created is false when the family already held an active voucher.
	Created    bool      `json:"created"`
}

type VoucherStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Redeemed int64 `json:"redeemed"`
	Expired  int64 `json:"expired"`
}

// IssueVoucher mints a voucher for the family unless it already holds a
// usable active one, in which case that voucher is returned unchanged.
func (s *Service) IssueVoucher(ctx context.Context, familyID string) (*IssuedVoucher, error) {
	if familyID == "" {
		return nil, invalid("family id is required")
	}
	now := s.now()

	var (
		v       *models.Voucher
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireFamily(tx, familyID); err != nil {
			return err
		}
		var err error
		v, created, err = s.issueVoucherTx(tx, familyID, now)
		return err
	})
	if err != nil {
		return nil, internal("issue voucher", err)
	}

	if created {
		s.publish(ctx, events.VoucherIssued, events.VoucherIssuedData{
			FamilyID: familyID, VoucherID: v.ID, Code: v.Code, ValidUntil: v.ValidUntil,
		})
	}
	return &IssuedVoucher{VoucherID: v.ID, Code: v.Code, ValidUntil: v.ValidUntil, Created: created}, nil
}

// issueVoucherTx is the shared issuance step used by IssueVoucher and by a
// visit that completes a cycle. The partial unique index on active vouchers
// settles races: whoever loses sees the winner's voucher.
func (s *Service) issueVoucherTx(tx *gorm.DB, familyID string, now time.Time) (*models.Voucher, bool, error) {
	existing, err := activeVoucher(tx, familyID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if now.Before(existing.ValidUntil) {
			log.Printf("family %s already has active voucher %s", familyID, existing.Code)
			return existing, false, nil
		}
		if err := tx.Model(existing).Updates(map[string]any{"status": models.VoucherExpired, "updated_at": now}).Error; err != nil {
			return nil, false, err
		}
	}

	for i := 0; i < maxCodeAttempts; i++ {
		digits, err := genCode6(s.rand)
		if err != nil {
			return nil, false, err
		}
		v := models.Voucher{
			ID:         uuid.NewString(),
			Code:       voucherCodePrefix + digits,
			FamilyID:   familyID,
			Status:     models.VoucherActive,
			IssuedAt:   now,
			ValidUntil: now.Add(s.cfg.VoucherValidity),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if v.QRData, err = s.signer.SealVoucher(v.ID, v.Code, now); err != nil {
			return nil, false, err
		}

		err = tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&v).Error })
		if db.IsUniqueViolation(err) {
			winner, werr := activeVoucher(tx, familyID)
			if werr != nil {
				return nil, false, werr
			}
			if winner != nil {
				return winner, false, nil
			}
			continue // code collision
		}
		if err != nil {
			return nil, false, err
		}
		log.Printf("voucher %s issued: family=%s valid_until=%s", v.Code, familyID, v.ValidUntil.Format(time.RFC3339))
		return &v, true, nil
	}
	return nil, false, errors.New("unable to generate a unique voucher code")
}

// RedeemVoucher moves an ACTIVE voucher to REDEEMED. A voucher found past its
// validity is persisted as EXPIRED and reported as such.
func (s *Service) RedeemVoucher(ctx context.Context, code, staffID string) (*models.Voucher, error) {
	if code == "" || staffID == "" {
		return nil, invalid("voucher code and staff id are required")
	}
	now := s.now()

	var (
		out    models.Voucher
		lapsed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v models.Voucher
		if err := tx.Where("code = ?", code).Limit(1).Find(&v).Error; err != nil {
			return err
		}
		if v.ID == "" {
			return notFound("voucher %s not found", code)
		}
		if v.Status != models.VoucherActive {
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("voucher is %s", v.Status), Status: v.Status}
		}
		if !now.Before(v.ValidUntil) {
			if err := tx.Model(&v).Updates(map[string]any{"status": models.VoucherExpired, "updated_at": now}).Error; err != nil {
				return err
			}
			lapsed = true
			return nil
		}

		res := tx.Model(&models.Voucher{}).
			Where("id = ? AND status = ?", v.ID, models.VoucherActive).
			Updates(map[string]any{
				"status":               models.VoucherRedeemed,
				"redeemed_at":          now,
				"redeemed_by_staff_id": staffID,
				"updated_at":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("voucher %s was redeemed concurrently", code)
		}
		if err := resetCycleOnRedeem(tx, v, now); err != nil {
			return err
		}
		return tx.First(&out, "id = ?", v.ID).Error
	})
	if err != nil {
		return nil, internal("redeem voucher", err)
	}
	if lapsed {
		log.Printf("voucher %s expired at redemption", code)
		return nil, &Error{Kind: KindExpired, Message: "voucher has expired", Status: models.VoucherExpired}
	}

	log.Printf("voucher %s redeemed by staff %s", code, staffID)
	s.publish(ctx, events.VoucherRedeemed, events.VoucherRedeemedData{
		FamilyID: out.FamilyID, VoucherID: out.ID, Code: out.Code, StaffID: staffID,
	})
	return &out, nil
}

// resetCycleOnRedeem ends the cycle that earned the voucher. Visits counted
// after issuance already belong to the next cycle and are kept.
func resetCycleOnRedeem(tx *gorm.DB, v models.Voucher, now time.Time) error {
	var c models.LoyaltyCounter
	if err := tx.Where("family_id = ?", v.FamilyID).Limit(1).Find(&c).Error; err != nil {
		return err
	}
	if c.ID == "" {
		return nil
	}
	if c.LastVisitAt != nil && c.LastVisitAt.After(v.IssuedAt) {
		log.Printf("family %s progressed since voucher %s was issued; keeping cycle count %d", v.FamilyID, v.Code, c.CurrentCycleCount)
		return nil
	}
	return tx.Model(&models.LoyaltyCounter{}).Where("id = ?", c.ID).Updates(map[string]any{
		"current_cycle_count": 0,
		"cycle_started_at":    now,
		"updated_at":          now,
	}).Error
}

// RedeemVoucherQR verifies a scanned voucher QR and redeems the voucher it
// names.
func (s *Service) RedeemVoucherQR(ctx context.Context, raw, staffID string) (*models.Voucher, error) {
	p, err := s.signer.OpenVoucher(raw, s.now(), s.cfg.VoucherQRMaxAge)
	if err != nil {
		return nil, signatureError(err)
	}
	v, err := s.FindVoucher(ctx, p.VoucherCode)
	if err != nil {
		return nil, err
	}
	if v.ID != p.VoucherID {
		return nil, notFound("voucher %s not found", p.VoucherCode)
	}
	return s.RedeemVoucher(ctx, p.VoucherCode, staffID)
}

// MarkExpiredVouchers moves every ACTIVE voucher past its validity to EXPIRED.
func (s *Service) MarkExpiredVouchers(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Voucher{}).
		Where("status = ? AND valid_until <= ?", models.VoucherActive, now).
		Updates(map[string]any{"status": models.VoucherExpired, "updated_at": now})
	if res.Error != nil {
		return 0, internal("mark expired vouchers", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("marked %d vouchers as expired", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (s *Service) FindVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher
	if err := s.db.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&v).Error; err != nil {
		return nil, internal("find voucher", err)
	}
	if v.ID == "" {
		return nil, notFound("voucher %s not found", code)
	}
	return &v, nil
}

// FindVoucherByID looks a voucher up by its uuid. Public QR links use it so
// the short voucher code never appears in a URL.
func (s *Service) FindVoucherByID(ctx context.Context, id string) (*models.Voucher, error) {
	var v models.Voucher
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&v).Error; err != nil {
		return nil, internal("find voucher", err)
	}
	if v.ID == "" {
		return nil, notFound("voucher not found")
	}
	return &v, nil
}

// ActiveVouchers lists the family's usable vouchers, newest first.
func (s *Service) ActiveVouchers(ctx context.Context, familyID string) ([]models.Voucher, error) {
	var vs []models.Voucher
	err := s.db.WithContext(ctx).
		Where("family_id = ? AND status = ? AND valid_until > ?", familyID, models.VoucherActive, s.now()).
		Order("issued_at desc").
		Find(&vs).Error
	if err != nil {
		return nil, internal("active vouchers", err)
	}
	return vs, nil
}

func (s *Service) VoucherStats(ctx context.Context) (VoucherStats, error) {
	now := s.now()
	var st VoucherStats
	err := s.db.WithContext(ctx).Model(&models.Voucher{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'ACTIVE' AND valid_until > ?  THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN status = 'REDEEMED'                    THEN 1 ELSE 0 END), 0) AS redeemed,
			COALESCE(SUM(CASE WHEN status = 'EXPIRED'
			                    OR (status = 'ACTIVE' AND valid_until <= ?) THEN 1 ELSE 0 END), 0) AS expired`,
			now, now).
		Scan(&st).Error
	if err != nil {
		return VoucherStats{}, internal("voucher stats", err)
	}
	return st, nil
}

func activeVoucher(tx *gorm.DB, familyID string) (*models.Voucher, error) {
	var v models.Voucher
	if err := tx.Where("family_id = ? AND status = ?", familyID, models.VoucherActive).Limit(1).Find(&v).Error; err != nil {
		return nil, err
	}
	if v.ID == "" {
		return nil, nil
	}
	return &v, nil
}

func signatureError(err error) *Error {
	switch {
	case errors.Is(err, signature.ErrExpired):
		return &Error{Kind: KindExpired, Message: "qr code expired", Err: err}
	default:
		return &Error{Kind: KindInvalidSignature, Message: "invalid qr code", Err: err}
	}
}

// VouchersExpiringBetween lists active vouchers whose validity ends in
// [from, to).
func (s *Service) VouchersExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Voucher, error) {
	var vs []models.Voucher
	err := s.db.WithContext(ctx).
		Where("status = ? AND valid_until >= ? AND valid_until < ?", models.VoucherActive, from.UTC(), to.UTC()).
		Order("valid_until").
		Find(&vs).Error
	if err != nil {
		return nil, internal("expiring vouchers", err)
	}
	return vs, nil
}
