package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/models"
)

const clientCodePrefix = "TF"

type NewFamily struct {
	Phone                 string      `json:"phone"`
	WaID                  string      `json:"waId"`
	Lang                  models.Lang `json:"lang"`
	KidsCount             *int        `json:"kidsCount"`
	ConsentMarketing      bool        `json:"consentMarketing"`
	ConsentDataProcessing bool        `json:"consentDataProcessing"`
}

// FamilyQR is a signed family_visit payload ready to be rendered.
type FamilyQR struct {
	FamilyID   string `json:"familyId"`
	ClientCode string `json:"clientCode"`
	Payload    string `json:"payload"`
}

// CreateFamily registers a family with the next TF-NNNNNN client code and a
// zero loyalty counter.
func (s *Service) CreateFamily(ctx context.Context, in NewFamily) (*models.Family, error) {
	var phone, waID *string
	if strings.TrimSpace(in.Phone) != "" {
		n := NormPhone(in.Phone)
		if n == "" {
			return nil, invalid("invalid phone number %q", in.Phone)
		}
		phone = &n
		if in.WaID == "" {
			w := strings.TrimPrefix(n, "+")
			waID = &w
		}
	}
	if w := strings.TrimSpace(in.WaID); w != "" {
		waID = &w
	}
	lang := in.Lang
	switch strings.ToUpper(string(lang)) {
	case "", "EN":
		lang = models.LangEN
	case "PT":
		lang = models.LangPT
	default:
		return nil, invalid("unsupported language %q", in.Lang)
	}

	now := s.now()
	var out *models.Family
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Family{}).Count(&n).Error; err != nil {
			return err
		}
		for i := 0; i < maxCodeAttempts; i++ {
			f := models.Family{
				Phone:                 phone,
				WaID:                  waID,
				Lang:                  lang,
				ClientCode:            fmt.Sprintf("%s-%06d", clientCodePrefix, n+1+int64(i)),
				KidsCount:             in.KidsCount,
				ConsentMarketing:      in.ConsentMarketing,
				ConsentDataProcessing: in.ConsentDataProcessing,
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			if in.ConsentMarketing || in.ConsentDataProcessing {
				f.ConsentAt = &now
			}
			err := tx.Transaction(func(sp *gorm.DB) error { return sp.Create(&f).Error })
			if db.IsUniqueViolation(err) {
				if exists, lerr := contactTaken(tx, phone, waID); lerr != nil {
					return lerr
				} else if exists {
					return conflict("a family with this phone is already registered")
				}
				continue // client code taken (a family was deleted); try the next one
			}
			if err != nil {
				return err
			}
			counter := models.LoyaltyCounter{FamilyID: f.ID, CycleStartedAt: now, CreatedAt: now, UpdatedAt: now}
			if err := tx.Create(&counter).Error; err != nil {
				return err
			}
			f.LoyaltyCounter = &counter
			out = &f
			return nil
		}
		return errors.New("could not allocate client code")
	})
	if err != nil {
		return nil, internal("create family", err)
	}
	log.Printf("family created: id=%s client_code=%s", out.ID, out.ClientCode)
	return out, nil
}

func contactTaken(tx *gorm.DB, phone, waID *string) (bool, error) {
	q := tx.Model(&models.Family{})
	switch {
	case phone != nil && waID != nil:
		q = q.Where("phone = ? OR wa_id = ?", *phone, *waID)
	case phone != nil:
		q = q.Where("phone = ?", *phone)
	case waID != nil:
		q = q.Where("wa_id = ?", *waID)
	default:
		return false, nil
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

func (s *Service) FindFamily(ctx context.Context, id string) (*models.Family, error) {
	return s.findFamily(ctx, "id = ?", id)
}

func (s *Service) FindFamilyByClientCode(ctx context.Context, code string) (*models.Family, error) {
	return s.findFamily(ctx, "client_code = ?", strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Service) FindFamilyByWaID(ctx context.Context, waID string) (*models.Family, error) {
	return s.findFamily(ctx, "wa_id = ?", strings.TrimPrefix(strings.TrimSpace(waID), "+"))
}

// FindFamilyByAnyPhone tries the stored phone variants, then a digits-only
// compare in SQL.
func (s *Service) FindFamilyByAnyPhone(ctx context.Context, phone string) (*models.Family, error) {
	for _, cand := range altPhones(phone) {
		f, err := s.findFamily(ctx, "phone = ?", cand)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if in := digitsOnly(phone); in != "" {
		q := `REPLACE(REPLACE(REPLACE(REPLACE(REPLACE(phone,'+',''),' ',''),'-',''),'(',''),')','')`
		if f, err := s.findFamily(ctx, q+" = ?", in); err == nil || !errors.Is(err, ErrNotFound) {
			return f, err
		}
	}
	return nil, notFound("family with phone %s not found", phone)
}

func (s *Service) findFamily(ctx context.Context, cond string, arg any) (*models.Family, error) {
	var f models.Family
	err := s.db.WithContext(ctx).Preload("LoyaltyCounter").Where(cond, arg).Limit(1).Find(&f).Error
	if err != nil {
		return nil, internal("find family", err)
	}
	if f.ID == "" {
		return nil, notFound("family not found")
	}
	return &f, nil
}

// SetFamilyLang stores the language used for notifications.
func (s *Service) SetFamilyLang(ctx context.Context, familyID string, lang models.Lang) error {
	if lang != models.LangEN && lang != models.LangPT {
		return invalid("unsupported language %q", lang)
	}
	res := s.db.WithContext(ctx).Model(&models.Family{}).Where("id = ?", familyID).
		Updates(map[string]any{"lang": lang, "updated_at": s.now()})
	if res.Error != nil {
		return internal("set language", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("family %s not found", familyID)
	}
	return nil
}

// IssueFamilyQR signs a fresh family_visit payload. Each payload can be
// confirmed once and only within the configured QR age.
func (s *Service) IssueFamilyQR(ctx context.Context, familyID string) (*FamilyQR, error) {
	f, err := s.FindFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	payload, err := s.signer.SealFamily(f.ID, f.ClientCode, s.now())
	if err != nil {
		return nil, internal("seal family qr", err)
	}
	return &FamilyQR{FamilyID: f.ID, ClientCode: f.ClientCode, Payload: payload}, nil
}
