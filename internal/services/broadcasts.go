package services

import (
	"context"
	"log"
	"strings"

	"github.com/teddyfriends/loyalty/internal/models"
)

// NewBroadcast is a message for every subscriber of Topic. Families get the
// text in their language, falling back to whichever one is set.
type NewBroadcast struct {
	Topic     models.Topic `json:"topic"`
	Title     string       `json:"title"`
	MessageEN string       `json:"messageEn"`
	MessagePT string       `json:"messagePt"`
	CreatedBy string       `json:"createdBy"`
}

// BroadcastResult counts delivery outcomes. Skipped families have no
// WhatsApp number on file.
type BroadcastResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type BroadcastStats struct {
	Total        int64   `json:"total"`
	Sent         int64   `json:"sent"`
	Pending      int64   `json:"pending"`
	Failed       int64   `json:"failed"`
	Recipients   int64   `json:"totalRecipients"`
	Undelivered  int64   `json:"undelivered"`
	DeliveryRate float64 `json:"deliveryRate"`
}

// CreateBroadcast stores a PENDING broadcast. Delivery and FinishBroadcast
// are the notifier's job.
func (s *Service) CreateBroadcast(ctx context.Context, in NewBroadcast) (*models.Broadcast, error) {
	if !validTopic(in.Topic) {
		return nil, invalid("unknown topic %q", in.Topic)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	if strings.TrimSpace(in.MessageEN) == "" && strings.TrimSpace(in.MessagePT) == "" {
		return nil, invalid("a message in EN or PT is required")
	}
	now := s.now()
	b := models.Broadcast{
		Topic:     in.Topic,
		Title:     in.Title,
		MessageEN: in.MessageEN,
		MessagePT: in.MessagePT,
		Status:    models.BroadcastPending,
		CreatedBy: optionalString(in.CreatedBy),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return nil, internal("create broadcast", err)
	}
	return &b, nil
}

// FinishBroadcast records the delivery totals. A broadcast where every
// attempt failed is FAILED, anything else is SENT.
func (s *Service) FinishBroadcast(ctx context.Context, id string, r BroadcastResult) (*models.Broadcast, error) {
	now := s.now()
	status := models.BroadcastSent
	if r.Sent == 0 && r.Failed > 0 {
		status = models.BroadcastFailed
	}
	res := s.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("id = ? AND status = ?", id, models.BroadcastPending).
		Updates(map[string]any{
			"status":     status,
			"sent":       r.Sent,
			"failed":     r.Failed,
			"skipped":    r.Skipped,
			"sent_at":    now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, internal("finish broadcast", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, conflict("broadcast %s is not pending", id)
	}
	log.Printf("broadcast %s %s: sent=%d failed=%d skipped=%d", id, status, r.Sent, r.Failed, r.Skipped)

	var b models.Broadcast
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, internal("finish broadcast", err)
	}
	return &b, nil
}

// ListBroadcasts returns the most recent broadcasts, newest first.
func (s *Service) ListBroadcasts(ctx context.Context, limit int) ([]models.Broadcast, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	bs := []models.Broadcast{}
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&bs).Error; err != nil {
		return nil, internal("list broadcasts", err)
	}
	return bs, nil
}

func (s *Service) BroadcastStats(ctx context.Context) (BroadcastStats, error) {
	var st BroadcastStats
	err := s.db.WithContext(ctx).Model(&models.Broadcast{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'SENT'    THEN 1 ELSE 0 END), 0) AS sent,
			COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'FAILED'  THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(sent), 0)   AS recipients,
			COALESCE(SUM(failed), 0) AS undelivered`).
		Scan(&st).Error
	if err != nil {
		return BroadcastStats{}, internal("broadcast stats", err)
	}
	if attempts := st.Recipients + st.Undelivered; attempts > 0 {
		st.DeliveryRate = float64(st.Recipients) * 100 / float64(attempts)
	}
	return st, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
