package events

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBus()
	var visits, vouchers atomic.Int32

	b.Subscribe(VisitConfirmed, func(_ context.Context, e Event) error {
		if d, ok := e.Data.(VisitConfirmedData); ok && d.FamilyID == "fam-1" {
			visits.Add(1)
		}
		return nil
	})
	b.Subscribe(VoucherIssued, func(context.Context, Event) error {
		vouchers.Add(1)
		return nil
	})

	b.Publish(context.Background(), VisitConfirmed, VisitConfirmedData{FamilyID: "fam-1"})
	b.Wait()

	if visits.Load() != 1 {
		t.Errorf("visit handler calls: want 1, got %d", visits.Load())
	}
	if vouchers.Load() != 0 {
		t.Errorf("voucher handler must not run, got %d", vouchers.Load())
	}
}

func TestPublishSurvivesCanceledContext(t *testing.T) {
	b := NewBus()
	var sawErr atomic.Bool
	b.Subscribe(VoucherRedeemed, func(ctx context.Context, _ Event) error {
		sawErr.Store(ctx.Err() != nil)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Publish(ctx, VoucherRedeemed, VoucherRedeemedData{Code: "TF-000001"})
	b.Wait()

	if sawErr.Load() {
		t.Error("handler context was canceled with the request")
	}
}
