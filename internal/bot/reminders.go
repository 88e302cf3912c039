package bot

import (
	"context"
	"log"
	"time"

	"github.com/teddyfriends/loyalty/internal/clock"
	"github.com/teddyfriends/loyalty/internal/services"
)

// Reminders warns families ahead of voucher expiry, once per offset.
type Reminders struct {
	svc      *services.Service
	notifier *Notifier
	clock    clock.Clock
	offsets  []time.Duration
}

func NewReminders(svc *services.Service, n *Notifier, clk clock.Clock, offsets []time.Duration) *Reminders {
	if len(offsets) == 0 {
		offsets = []time.Duration{72 * time.Hour, 24 * time.Hour}
	}
	return &Reminders{svc: svc, notifier: n, clock: clk, offsets: offsets}
}

// Start runs the reminder loop every minute until ctx is done.
func (r *Reminders) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce sends the reminders due in the current minute and returns how many
// were sent.
func (r *Reminders) RunOnce(ctx context.Context) int {
	// strict 1-minute window [tick, tick+1m) so each voucher is hit once per offset
	tick := r.clock.Now().Truncate(time.Minute)
	next := tick.Add(time.Minute)

	sent := 0
	for _, ahead := range r.offsets {
		// trigger = valid_until - ahead ∈ [tick, next)
		vs, err := r.svc.VouchersExpiringBetween(ctx, tick.Add(ahead), next.Add(ahead))
		if err != nil {
			log.Printf("reminders: %v", err)
			continue
		}
		for _, v := range vs {
			f, err := r.svc.FindFamily(ctx, v.FamilyID)
			if err != nil {
				log.Printf("reminders: voucher %s: %v", v.Code, err)
				continue
			}
			body := T(f.Lang, msgVoucherReminder, v.Code, formatDate(f.Lang, v.ValidUntil))
			if err := r.notifier.deliver(ctx, f, "voucher_reminder", body, r.notifier.VoucherQRURL(v.ID)); err != nil {
				log.Printf("reminders: voucher %s: %v", v.Code, err)
				continue
			}
			sent++
		}
	}
	return sent
}
