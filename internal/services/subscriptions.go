package services

import (
	"context"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teddyfriends/loyalty/internal/models"
)

type SubscriptionStats struct {
	Events int64 `json:"events"`
	Promos int64 `json:"promotions"`
	News   int64 `json:"news"`
	Total  int64 `json:"total"`
}

// ParseTopic accepts a topic name in any case. "promotions" is an alias of
// PROMOS.
func ParseTopic(s string) (models.Topic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EVENTS":
		return models.TopicEvents, nil
	case "PROMOS", "PROMOTIONS":
		return models.TopicPromos, nil
	case "NEWS":
		return models.TopicNews, nil
	}
	return "", invalid("unknown topic %q", s)
}

func validTopic(t models.Topic) bool {
	for _, known := range models.Topics {
		if t == known {
			return true
		}
	}
	return false
}

// Subscribe opts the family into topic. Only families that gave marketing
// consent can subscribe; subscribing twice is a no-op.
func (s *Service) Subscribe(ctx context.Context, familyID string, topic models.Topic) (*models.Subscription, error) {
	if familyID == "" {
		return nil, invalid("family id is required")
	}
	if !validTopic(topic) {
		return nil, invalid("unknown topic %q", topic)
	}
	now := s.now()

	var sub models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var f models.Family
		if err := tx.Where("id = ?", familyID).Limit(1).Find(&f).Error; err != nil {
			return err
		}
		if f.ID == "" {
			return notFound("family %s not found", familyID)
		}
		if !f.ConsentMarketing {
			return &Error{Kind: KindConsentRequired, Message: "marketing consent required"}
		}
		return setSubscription(tx, familyID, topic, true, now, &sub)
	})
	if err != nil {
		return nil, internal("subscribe", err)
	}
	log.Printf("family %s subscribed to %s", familyID, topic)
	return &sub, nil
}

// Unsubscribe opts the family out of topic. It needs no consent and succeeds
// for a topic the family never joined.
func (s *Service) Unsubscribe(ctx context.Context, familyID string, topic models.Topic) (*models.Subscription, error) {
	if !validTopic(topic) {
		return nil, invalid("unknown topic %q", topic)
	}
	now := s.now()

	var sub models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireFamily(tx, familyID); err != nil {
			return err
		}
		return setSubscription(tx, familyID, topic, false, now, &sub)
	})
	if err != nil {
		return nil, internal("unsubscribe", err)
	}
	log.Printf("family %s unsubscribed from %s", familyID, topic)
	return &sub, nil
}

func setSubscription(tx *gorm.DB, familyID string, topic models.Topic, on bool, now time.Time, out *models.Subscription) error {
	row := models.Subscription{
		FamilyID:  familyID,
		Topic:     topic,
		OptedIn:   on,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "family_id"}, {Name: "topic"}},
		DoUpdates: clause.Assignments(map[string]any{"opted_in": on, "updated_at": now}),
	}).Create(&row).Error
	if err != nil {
		return err
	}
	return tx.Where("family_id = ? AND topic = ?", familyID, topic).First(out).Error
}

// SetMarketingConsent records the family's marketing choice. Withdrawing
// consent also opts the family out of every topic.
func (s *Service) SetMarketingConsent(ctx context.Context, familyID string, consent bool) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"consent_marketing": consent, "updated_at": now}
		if consent {
			updates["consent_at"] = now
		}
		res := tx.Model(&models.Family{}).Where("id = ?", familyID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("family %s not found", familyID)
		}
		if consent {
			return nil
		}
		return tx.Model(&models.Subscription{}).
			Where("family_id = ? AND opted_in = ?", familyID, true).
			Updates(map[string]any{"opted_in": false, "updated_at": now}).Error
	})
	if err != nil {
		return internal("set marketing consent", err)
	}
	log.Printf("family %s marketing consent=%t", familyID, consent)
	return nil
}

// FamilySubscriptions lists the topics the family is opted into.
func (s *Service) FamilySubscriptions(ctx context.Context, familyID string) ([]models.Subscription, error) {
	if err := requireFamily(s.db.WithContext(ctx), familyID); err != nil {
		return nil, internal("family subscriptions", err)
	}
	subs := []models.Subscription{}
	err := s.db.WithContext(ctx).
		Where("family_id = ? AND opted_in = ?", familyID, true).
		Order("topic").
		Find(&subs).Error
	if err != nil {
		return nil, internal("family subscriptions", err)
	}
	return subs, nil
}

// Subscribers lists the families opted into topic that still hold marketing
// consent, oldest first.
func (s *Service) Subscribers(ctx context.Context, topic models.Topic) ([]models.Family, error) {
	if !validTopic(topic) {
		return nil, invalid("unknown topic %q", topic)
	}
	fs := []models.Family{}
	err := s.db.WithContext(ctx).Model(&models.Family{}).
		Select("families.*").
		Joins("JOIN subscriptions ON subscriptions.family_id = families.id").
		Where("subscriptions.topic = ? AND subscriptions.opted_in = ? AND families.consent_marketing = ?", topic, true, true).
		Order("families.created_at").
		Find(&fs).Error
	if err != nil {
		return nil, internal("subscribers", err)
	}
	return fs, nil
}

func (s *Service) SubscriptionStats(ctx context.Context) (SubscriptionStats, error) {
	var st SubscriptionStats
	err := s.db.WithContext(ctx).Table("subscriptions").
		Joins("JOIN families ON families.id = subscriptions.family_id").
		Where("subscriptions.opted_in = ? AND families.consent_marketing = ?", true, true).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN subscriptions.topic = 'EVENTS' THEN 1 ELSE 0 END), 0) AS events,
			COALESCE(SUM(CASE WHEN subscriptions.topic = 'PROMOS' THEN 1 ELSE 0 END), 0) AS promos,
			COALESCE(SUM(CASE WHEN subscriptions.topic = 'NEWS'   THEN 1 ELSE 0 END), 0) AS news`).
		Scan(&st).Error
	if err != nil {
		return SubscriptionStats{}, internal("subscription stats", err)
	}
	return st, nil
}
