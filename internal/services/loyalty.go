package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/models"
)

type LoyaltyStatus struct {
	FamilyID          string           `json:"familyId"`
	ClientCode        string           `json:"clientCode"`
	CurrentCycleCount int              `json:"currentCycleCount"`
	TotalVisits       int              `json:"totalVisits"`
	RemainingVisits   int              `json:"remainingVisits"`
	Progress          LoyaltyProgress  `json:"progress"`
	HasActiveVoucher  bool             `json:"hasActiveVoucher"`
	ActiveVouchers    []models.Voucher `json:"activeVouchers"`
	LastVisitAt       *time.Time       `json:"lastVisitAt"`
	CycleStartedAt    *time.Time       `json:"cycleStartedAt"`
}

type CycleBucket struct {
	Count    int   `json:"currentCycleCount"`
	Families int64 `json:"families"`
}

type LoyaltyStats struct {
	TotalFamilies       int64         `json:"totalFamilies"`
	FamiliesWithLoyalty int64         `json:"familiesWithLoyalty"`
	ActiveVouchers      int64         `json:"activeVouchers"`
	RedeemedVouchers    int64         `json:"redeemedVouchers"`
	Distribution        []CycleBucket `json:"loyaltyDistribution"`
}

type SourceCount struct {
	Source models.VisitSource `json:"source"`
	Count  int64              `json:"count"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

type VisitStats struct {
	TotalVisits int64         `json:"totalVisits"`
	BySource    []SourceCount `json:"visitsBySource"`
	ByDay       []DayCount    `json:"visitsByDay"`
}

// LoyaltyStatus reports the family's cycle; a family without a counter row
// reads as zero progress.
func (s *Service) LoyaltyStatus(ctx context.Context, familyID string) (*LoyaltyStatus, error) {
	f, err := s.FindFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	active, err := s.ActiveVouchers(ctx, familyID)
	if err != nil {
		return nil, err
	}

	st := &LoyaltyStatus{
		FamilyID:         f.ID,
		ClientCode:       f.ClientCode,
		HasActiveVoucher: len(active) > 0,
		ActiveVouchers:   active,
	}
	if c := f.LoyaltyCounter; c != nil {
		st.CurrentCycleCount = c.CurrentCycleCount
		st.TotalVisits = c.TotalVisits
		st.LastVisitAt = c.LastVisitAt
		started := c.CycleStartedAt
		st.CycleStartedAt = &started
	}
	target := s.cfg.LoyaltyTarget
	st.RemainingVisits = max(target-st.CurrentCycleCount, 0)
	st.Progress = progress(st.CurrentCycleCount, target)
	return st, nil
}

func (s *Service) LoyaltyStats(ctx context.Context) (*LoyaltyStats, error) {
	q := s.db.WithContext(ctx)
	st := &LoyaltyStats{}
	if err := q.Model(&models.Family{}).Count(&st.TotalFamilies).Error; err != nil {
		return nil, internal("loyalty stats", err)
	}
	if err := q.Model(&models.LoyaltyCounter{}).Count(&st.FamiliesWithLoyalty).Error; err != nil {
		return nil, internal("loyalty stats", err)
	}
	if err := q.Model(&models.Voucher{}).Where("status = ?", models.VoucherActive).Count(&st.ActiveVouchers).Error; err != nil {
		return nil, internal("loyalty stats", err)
	}
	if err := q.Model(&models.Voucher{}).Where("status = ?", models.VoucherRedeemed).Count(&st.RedeemedVouchers).Error; err != nil {
		return nil, internal("loyalty stats", err)
	}
	err := q.Model(&models.LoyaltyCounter{}).
		Select("current_cycle_count AS count, COUNT(*) AS families").
		Group("current_cycle_count").
		Order("current_cycle_count").
		Scan(&st.Distribution).Error
	if err != nil {
		return nil, internal("loyalty stats", err)
	}
	return st, nil
}

// FamilyVisits returns the family's most recent visits, newest first.
func (s *Service) FamilyVisits(ctx context.Context, familyID string, limit int) ([]models.Visit, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var out []models.Visit
	err := s.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, internal("family visits", err)
	}
	return out, nil
}

// VisitStats counts visits in [from, to]; nil bounds are open.
func (s *Service) VisitStats(ctx context.Context, from, to *time.Time) (*VisitStats, error) {
	q := s.db.WithContext(ctx).Model(&models.Visit{})
	if from != nil {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("created_at <= ?", to.UTC())
	}

	st := &VisitStats{}
	if err := q.Session(&gorm.Session{}).Count(&st.TotalVisits).Error; err != nil {
		return nil, internal("visit stats", err)
	}
	err := q.Session(&gorm.Session{}).
		Select("source, COUNT(*) AS count").
		Group("source").
		Order("source").
		Scan(&st.BySource).Error
	if err != nil {
		return nil, internal("visit stats", err)
	}
	// timestamps are stored UTC, so the first ten characters are the day
	err = q.Session(&gorm.Session{}).
		Select("substr(created_at, 1, 10) AS day, COUNT(*) AS count").
		Group("day").
		Order("day").
		Scan(&st.ByDay).Error
	if err != nil {
		return nil, internal("visit stats", err)
	}
	return st, nil
}
