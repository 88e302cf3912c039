package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/services"
)

// Broadcaster delivers a broadcast to a topic's subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, in services.NewBroadcast) (*models.Broadcast, error)
}

// PUT /api/families/{id}/consent
func SetMarketingConsent(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Marketing *bool `json:"marketing"`
		}
		if err := decode(r, &in); err != nil || in.Marketing == nil {
			badRequest(w, `body must be {"marketing": true|false}`)
			return
		}
		id := chi.URLParam(r, "id")
		if err := svc.SetMarketingConsent(r.Context(), id, *in.Marketing); err != nil {
			writeError(w, err)
			return
		}
		f, err := svc.FindFamily(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// GET /api/families/{id}/subscriptions
func FamilySubscriptions(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := svc.FamilySubscriptions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subs)
	}
}

// POST /api/families/{id}/subscriptions
func Subscribe(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Topic string `json:"topic"`
		}
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		topic, err := services.ParseTopic(in.Topic)
		if err != nil {
			writeError(w, err)
			return
		}
		sub, err := svc.Subscribe(r.Context(), chi.URLParam(r, "id"), topic)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// DELETE /api/families/{id}/subscriptions/{topic}
func Unsubscribe(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic, err := services.ParseTopic(chi.URLParam(r, "topic"))
		if err != nil {
			writeError(w, err)
			return
		}
		sub, err := svc.Unsubscribe(r.Context(), chi.URLParam(r, "id"), topic)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// GET /api/subscriptions/stats
func SubscriptionStats(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.SubscriptionStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /api/subscriptions/{topic}/subscribers
func Subscribers(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic, err := services.ParseTopic(chi.URLParam(r, "topic"))
		if err != nil {
			writeError(w, err)
			return
		}
		fs, err := svc.Subscribers(r.Context(), topic)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fs)
	}
}

// POST /api/broadcasts
func SendBroadcast(b Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Topic     string `json:"topic"`
			Title     string `json:"title"`
			MessageEN string `json:"messageEn"`
			MessagePT string `json:"messagePt"`
		}
		if err := decode(r, &in); err != nil {
			badRequest(w, "invalid json body")
			return
		}
		topic, err := services.ParseTopic(in.Topic)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := b.Broadcast(r.Context(), services.NewBroadcast{
			Topic:     topic,
			Title:     in.Title,
			MessageEN: in.MessageEN,
			MessagePT: in.MessagePT,
			CreatedBy: staffID(r, ""),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// GET /api/broadcasts?limit=
func ListBroadcasts(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		bs, err := svc.ListBroadcasts(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bs)
	}
}

// GET /api/broadcasts/stats
func BroadcastStats(svc *services.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.BroadcastStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
