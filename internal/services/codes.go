package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/models"
)

const maxCodeAttempts = 10

type IssuedCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ActiveCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type CodesStats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Used    int64 `json:"used"`
	Expired int64 `json:"expired"`
}

// genCode6 draws a uniform 6-digit code. 24 random bits are rejected above
// 16,000,000 so every code has the same probability.
func genCode6(r io.Reader) (string, error) {
	var b [3]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", err
		}
		n := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
		if n < 16_000_000 {
			return fmt.Sprintf("%06d", n%1_000_000), nil
		}
	}
}

// IssueCode invalidates the family's open codes and issues a fresh one, so at
// most one usable code exists per family. ttl <= 0 uses the configured TTL.
func (s *Service) IssueCode(ctx context.Context, familyID string, ttl time.Duration, staffID *string) (*IssuedCode, error) {
	if familyID == "" {
		return nil, invalid("family id is required")
	}
	if ttl <= 0 {
		ttl = s.cfg.CodeTTL
	}
	now := s.now()

	var out *IssuedCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireFamily(tx, familyID); err != nil {
			return err
		}

		if err := tx.Model(&models.VisitCode{}).
			Where("family_id = ? AND is_used = ? AND expires_at > ?", familyID, false, now).
			Updates(map[string]any{"is_used": true, "used_at": now}).Error; err != nil {
			return err
		}

		// try up to maxCodeAttempts times to avoid unique collisions
		for i := 0; i < maxCodeAttempts; i++ {
			code, err := genCode6(s.rand)
			if err != nil {
				return err
			}
			vc := models.VisitCode{
				Code:      code,
				FamilyID:  familyID,
				StaffID:   staffID,
				ExpiresAt: now.Add(ttl),
				CreatedAt: now,
			}
			err = tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&vc).Error })
			if db.IsUniqueViolation(err) {
				log.Printf("visit code collision on %s, retrying", code)
				continue
			}
			if err != nil {
				return err
			}
			out = &IssuedCode{Code: vc.Code, ExpiresAt: vc.ExpiresAt}
			return nil
		}
		return errors.New("unable to generate a unique visit code")
	})
	if err != nil {
		return nil, internal("issue code", err)
	}

	log.Printf("visit code %s issued: family=%s expires=%s", out.Code, familyID, out.ExpiresAt.Format(time.RFC3339))
	return out, nil
}

// ActiveCodes lists the family's unexpired, unused codes, newest first.
func (s *Service) ActiveCodes(ctx context.Context, familyID string) ([]ActiveCode, error) {
	var codes []ActiveCode
	err := s.db.WithContext(ctx).Model(&models.VisitCode{}).
		Select("code, expires_at, created_at").
		Where("family_id = ? AND is_used = ? AND expires_at > ?", familyID, false, s.now()).
		Order("created_at desc").
		Scan(&codes).Error
	if err != nil {
		return nil, internal("active codes", err)
	}
	return codes, nil
}

// CleanupExpiredCodes deletes expired codes and codes used longer ago than
// the retention period. Open codes are never touched.
func (s *Service) CleanupExpiredCodes(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).
		Where("expires_at < ? OR (is_used = ? AND used_at < ?)", now, true, now.Add(-s.cfg.UsedCodeRetention)).
		Delete(&models.VisitCode{})
	if res.Error != nil {
		return 0, internal("cleanup codes", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("cleaned up %d visit codes", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (s *Service) CodesStats(ctx context.Context) (CodesStats, error) {
	now := s.now()
	var st CodesStats
	err := s.db.WithContext(ctx).Model(&models.VisitCode{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_used = 0 AND expires_at >  ? THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN is_used = 1                     THEN 1 ELSE 0 END), 0) AS used,
			COALESCE(SUM(CASE WHEN is_used = 0 AND expires_at <= ? THEN 1 ELSE 0 END), 0) AS expired`,
			now, now).
		Scan(&st).Error
	if err != nil {
		return CodesStats{}, internal("codes stats", err)
	}
	return st, nil
}

func requireFamily(tx *gorm.DB, familyID string) error {
	var n int64
	if err := tx.Model(&models.Family{}).Where("id = ?", familyID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound("family %s not found", familyID)
	}
	return nil
}
