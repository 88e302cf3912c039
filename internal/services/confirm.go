package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/events"
	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/tracing"
)

// ConfirmRequest carries exactly one proof of presence: a visit code, a
// scanned family QR payload, or (staff desk path) the family id itself.
type ConfirmRequest struct {
	Code      string
	QRPayload string
	FamilyID  string

	// Source tags the visit; empty derives it from the proof.
	Source  models.VisitSource
	StaffID *string
	Note    *string
}

type LoyaltyProgress struct {
	Current    int `json:"current"`
	Target     int `json:"target"`
	Percentage int `json:"percentage"`
}

type VoucherRef struct {
	VoucherID string `json:"voucherId"`
	Code      string `json:"code"`
}

type ConfirmationResult struct {
	VisitID         string          `json:"visitId"`
	FamilyID        string          `json:"familyId"`
	LoyaltyProgress LoyaltyProgress `json:"loyaltyProgress"`
	VoucherIssued   *VoucherRef     `json:"voucherIssued,omitempty"`
}

// ParseSource accepts CODE, QR, DESK and MANUAL (an alias of DESK),
// case-insensitively. Empty input yields an empty source.
func ParseSource(s string) (models.VisitSource, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "CODE":
		return models.SourceCode, nil
	case "QR":
		return models.SourceQR, nil
	case "DESK", "MANUAL":
		return models.SourceDesk, nil
	}
	return "", invalid("unknown visit source %q", s)
}

// proof is the resolved token of one confirmation attempt.
type proof struct {
	kind       models.VisitSource
	familyID   string
	raw        string // code or QR payload, kept on the visit row
	clientCode string // QR only
	qrSig      string // QR only
	code       *models.VisitCode
}

// ConfirmVisit runs one confirmation attempt: resolve the proof, check
// existence, freshness and the anti-fraud window, then commit the visit,
// the counter increment and (on cycle completion) the voucher in a single
// transaction. Any rejection leaves the store untouched.
func (s *Service) ConfirmVisit(ctx context.Context, req ConfirmRequest) (*ConfirmationResult, error) {
	ctx, span := tracing.Get().StartSpan(ctx, "loyalty.ConfirmVisit")
	defer span.End()

	now := s.now()
	p, source, err := s.preflight(req, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var (
		res     *ConfirmationResult
		voucher *models.Voucher
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.resolve(tx, &p, now); err != nil {
			return err
		}
		if err := s.checkRateLimit(tx, p.familyID, now); err != nil {
			return err
		}
		var err error
		res, voucher, err = s.commitVisit(tx, p, source, req, now)
		return err
	})
	if err != nil {
		err = internal("confirm visit", err)
		span.RecordError(err)
		log.Printf("visit rejected: source=%s kind=%s: %v", source, KindOf(err), err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("family.id", res.FamilyID),
		attribute.String("visit.source", string(source)),
		attribute.Bool("voucher.issued", voucher != nil),
	)
	log.Printf("visit confirmed: family=%s source=%s progress=%d/%d", res.FamilyID, source, res.LoyaltyProgress.Current, res.LoyaltyProgress.Target)

	data := events.VisitConfirmedData{
		FamilyID:   res.FamilyID,
		VisitID:    res.VisitID,
		Source:     string(source),
		Current:    res.LoyaltyProgress.Current,
		Target:     res.LoyaltyProgress.Target,
		Percentage: res.LoyaltyProgress.Percentage,
	}
	if voucher != nil {
		data.VoucherID = voucher.ID
		s.publish(ctx, events.VoucherIssued, events.VoucherIssuedData{
			FamilyID: voucher.FamilyID, VoucherID: voucher.ID, Code: voucher.Code, ValidUntil: voucher.ValidUntil,
		})
	}
	s.publish(ctx, events.VisitConfirmed, data)
	return res, nil
}

// preflight validates the request shape and, for QR, the signature and age.
// It needs no storage.
func (s *Service) preflight(req ConfirmRequest, now time.Time) (proof, models.VisitSource, error) {
	code := strings.TrimSpace(req.Code)
	qr := strings.TrimSpace(req.QRPayload)
	fam := strings.TrimSpace(req.FamilyID)

	given := 0
	for _, v := range []string{code, qr, fam} {
		if v != "" {
			given++
		}
	}
	if given != 1 {
		return proof{}, "", invalid("exactly one of code, qr payload or family id is required")
	}

	var p proof
	switch {
	case code != "":
		p = proof{kind: models.SourceCode, raw: code}
	case qr != "":
		payload, sig, err := s.signer.OpenFamily(qr, now, s.cfg.FamilyQRMaxAge)
		if err != nil {
			return proof{}, "", signatureError(err)
		}
		p = proof{kind: models.SourceQR, raw: qr, familyID: payload.FamilyID, clientCode: payload.ClientCode, qrSig: sig}
	default:
		p = proof{kind: models.SourceDesk, familyID: fam}
	}

	source := req.Source
	if source == "" {
		source = p.kind
	}
	if _, err := ParseSource(string(source)); err != nil {
		return proof{}, "", err
	}
	return p, source, nil
}

// resolve checks that the proof exists and is still usable.
func (s *Service) resolve(tx *gorm.DB, p *proof, now time.Time) error {
	switch p.kind {
	case models.SourceCode:
		var vc models.VisitCode
		if err := tx.Where("code = ?", p.raw).Limit(1).Find(&vc).Error; err != nil {
			return err
		}
		if vc.ID == "" {
			return notFound("visit code not found")
		}
		if vc.IsUsed {
			return conflict("visit code already used")
		}
		if !now.Before(vc.ExpiresAt) {
			return expired("visit code expired")
		}
		p.code = &vc
		p.familyID = vc.FamilyID
		return nil

	case models.SourceQR:
		var f models.Family
		if err := tx.Where("id = ?", p.familyID).Limit(1).Find(&f).Error; err != nil {
			return err
		}
		if f.ID == "" {
			return notFound("family %s not found", p.familyID)
		}
		if f.ClientCode != p.clientCode {
			return &Error{Kind: KindInvalidSignature, Message: "qr code does not match family"}
		}
		var used int64
		if err := tx.Model(&models.ScannedQR{}).Where("signature = ?", p.qrSig).Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return conflict("qr code already used")
		}
		return nil

	default:
		return requireFamily(tx, p.familyID)
	}
}

func (s *Service) checkRateLimit(tx *gorm.DB, familyID string, now time.Time) error {
	var last models.Visit
	err := tx.Where("family_id = ? AND created_at > ?", familyID, now.Add(-s.cfg.RateLimitWindow)).
		Order("created_at desc").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return err
	}
	if last.ID != "" {
		return &Error{
			Kind:    KindRateLimited,
			Message: fmt.Sprintf("visit already recorded at %s; wait %s between visits", last.CreatedAt.Format(time.RFC3339), s.cfg.RateLimitWindow),
		}
	}
	return nil
}

func (s *Service) commitVisit(tx *gorm.DB, p proof, source models.VisitSource, req ConfirmRequest, now time.Time) (*ConfirmationResult, *models.Voucher, error) {
	// a. consume the proof
	switch p.kind {
	case models.SourceCode:
		res := tx.Model(&models.VisitCode{}).
			Where("id = ? AND is_used = ?", p.code.ID, false).
			Updates(map[string]any{"is_used": true, "used_at": now})
		if res.Error != nil {
			return nil, nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, nil, conflict("visit code already used")
		}
	case models.SourceQR:
		scan := models.ScannedQR{Signature: p.qrSig, FamilyID: p.familyID, UsedAt: now}
		err := tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&scan).Error })
		if db.IsUniqueViolation(err) {
			return nil, nil, conflict("qr code already used")
		}
		if err != nil {
			return nil, nil, err
		}
	}

	// b. audit row
	visit := models.Visit{
		FamilyID:  p.familyID,
		Source:    source,
		StaffID:   req.StaffID,
		Note:      req.Note,
		CreatedAt: now,
	}
	if p.raw != "" {
		raw := p.raw
		visit.SourceData = &raw
	}
	if err := tx.Create(&visit).Error; err != nil {
		return nil, nil, err
	}

	// c. atomic increment, creating the counter on first visit
	fresh := models.LoyaltyCounter{
		FamilyID:          p.familyID,
		CurrentCycleCount: 1,
		TotalVisits:       1,
		LastVisitAt:       &now,
		CycleStartedAt:    now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "family_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"current_cycle_count": gorm.Expr("current_cycle_count + 1"),
			"total_visits":        gorm.Expr("total_visits + 1"),
			"last_visit_at":       now,
			"updated_at":          now,
		}),
	}).Create(&fresh).Error
	if err != nil {
		return nil, nil, err
	}
	var counter models.LoyaltyCounter
	if err := tx.Where("family_id = ?", p.familyID).First(&counter).Error; err != nil {
		return nil, nil, err
	}

	// d. cycle completion: voucher (unless one is active) and reset
	target := s.cfg.LoyaltyTarget
	count := counter.CurrentCycleCount
	var minted *models.Voucher
	if count >= target {
		v, created, err := s.issueVoucherTx(tx, p.familyID, now)
		if err != nil {
			return nil, nil, err
		}
		if created {
			minted = v
		}
		if err := tx.Model(&models.LoyaltyCounter{}).Where("id = ?", counter.ID).Updates(map[string]any{
			"current_cycle_count": 0,
			"cycle_completed_at":  now,
			"cycle_started_at":    now,
			"updated_at":          now,
		}).Error; err != nil {
			return nil, nil, err
		}
	}

	// e. progress as seen by this visit, before the reset
	res := &ConfirmationResult{
		VisitID:         visit.ID,
		FamilyID:        p.familyID,
		LoyaltyProgress: progress(count, target),
	}
	if minted != nil {
		res.VoucherIssued = &VoucherRef{VoucherID: minted.ID, Code: minted.Code}
	}
	return res, minted, nil
}

func progress(count, target int) LoyaltyProgress {
	cur := count
	if cur > target {
		cur = target
	}
	if cur < 0 {
		cur = 0
	}
	return LoyaltyProgress{
		Current:    cur,
		Target:     target,
		Percentage: int(math.Round(100 * float64(cur) / float64(target))),
	}
}
