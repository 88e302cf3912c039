package services

import (
	"context"
	"testing"
	"time"

	"github.com/teddyfriends/loyalty/internal/models"
)

func TestCreateBroadcast_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]NewBroadcast{
		"topic":   {Topic: "SPORTS", Title: "x", MessageEN: "hi"},
		"title":   {Topic: models.TopicPromos, Title: "  ", MessageEN: "hi"},
		"message": {Topic: models.TopicPromos, Title: "Easter"},
	}
	for name, in := range cases {
		_, err := f.svc.CreateBroadcast(ctx, in)
		if KindOf(err) != KindInvalidRequest {
			t.Errorf("%s: err = %v", name, err)
		}
	}

	b, err := f.svc.CreateBroadcast(ctx, NewBroadcast{Topic: models.TopicPromos, Title: " Easter ", MessagePT: "Páscoa", CreatedBy: "staff-1"})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.BroadcastPending || b.Title != "Easter" || b.CreatedBy == nil || *b.CreatedBy != "staff-1" {
		t.Errorf("broadcast = %+v", b)
	}
}

func TestFinishBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newB := func() *models.Broadcast {
		b, err := f.svc.CreateBroadcast(ctx, NewBroadcast{Topic: models.TopicNews, Title: "n", MessageEN: "hello"})
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	ok := newB()
	f.clock.Advance(time.Minute)
	got, err := f.svc.FinishBroadcast(ctx, ok.ID, BroadcastResult{Sent: 2, Failed: 1, Skipped: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BroadcastSent || got.Sent != 2 || got.Failed != 1 || got.Skipped != 1 {
		t.Errorf("finished = %+v", got)
	}
	if got.SentAt == nil || !got.SentAt.Equal(f.clock.Now()) {
		t.Errorf("sent at = %v", got.SentAt)
	}
	_, err = f.svc.FinishBroadcast(ctx, ok.ID, BroadcastResult{})
	wantKind(t, err, ErrConflict)

	bad := newB()
	got, err = f.svc.FinishBroadcast(ctx, bad.ID, BroadcastResult{Failed: 3})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BroadcastFailed {
		t.Errorf("all-failed status = %s", got.Status)
	}

	newB()
	st, err := f.svc.BroadcastStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 3 || st.Sent != 1 || st.Failed != 1 || st.Pending != 1 || st.Recipients != 2 || st.Undelivered != 4 {
		t.Errorf("stats = %+v", st)
	}
	if st.DeliveryRate < 33.3 || st.DeliveryRate > 33.4 {
		t.Errorf("delivery rate = %f", st.DeliveryRate)
	}

	list, err := f.svc.ListBroadcasts(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[2].ID != ok.ID {
		t.Errorf("list order = %+v", list)
	}
}
