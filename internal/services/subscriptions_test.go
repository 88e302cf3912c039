package services

import (
	"context"
	"testing"

	"github.com/teddyfriends/loyalty/internal/models"
)

func (f *fixture) marketingFamily(t *testing.T) *models.Family {
	t.Helper()
	fam, err := f.svc.CreateFamily(context.Background(), NewFamily{ConsentMarketing: true, ConsentDataProcessing: true})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return fam
}

func TestParseTopic(t *testing.T) {
	for in, want := range map[string]models.Topic{
		"events":     models.TopicEvents,
		" PROMOS ":   models.TopicPromos,
		"promotions": models.TopicPromos,
		"News":       models.TopicNews,
	} {
		got, err := ParseTopic(in)
		if err != nil || got != want {
			t.Errorf("ParseTopic(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	_, err := ParseTopic("sports")
	wantKind(t, err, ErrInvalidRequest)
}

func TestSubscribe_RequiresMarketingConsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)

	_, err := f.svc.Subscribe(ctx, fam.ID, models.TopicPromos)
	wantKind(t, err, ErrConsentRequired)
	var n int64
	f.db.Model(&models.Subscription{}).Count(&n)
	if n != 0 {
		t.Fatalf("subscriptions = %d, want 0", n)
	}

	if err := f.svc.SetMarketingConsent(ctx, fam.ID, true); err != nil {
		t.Fatal(err)
	}
	sub, err := f.svc.Subscribe(ctx, fam.ID, models.TopicPromos)
	if err != nil {
		t.Fatal(err)
	}
	if !sub.OptedIn || sub.Topic != models.TopicPromos || sub.FamilyID != fam.ID {
		t.Errorf("subscription = %+v", sub)
	}

	_, err = f.svc.Subscribe(ctx, "missing", models.TopicPromos)
	wantKind(t, err, ErrNotFound)
	_, err = f.svc.Subscribe(ctx, fam.ID, "SPORTS")
	wantKind(t, err, ErrInvalidRequest)
}

func TestSubscribe_IdempotentAndUnsubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.marketingFamily(t)

	first, err := f.svc.Subscribe(ctx, fam.ID, models.TopicNews)
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.svc.Subscribe(ctx, fam.ID, models.TopicNews)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("second subscribe created row %s, want %s", again.ID, first.ID)
	}
	if _, err := f.svc.Subscribe(ctx, fam.ID, models.TopicEvents); err != nil {
		t.Fatal(err)
	}

	subs, err := f.svc.FamilySubscriptions(ctx, fam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].Topic != models.TopicEvents || subs[1].Topic != models.TopicNews {
		t.Fatalf("subscriptions = %+v", subs)
	}

	off, err := f.svc.Unsubscribe(ctx, fam.ID, models.TopicNews)
	if err != nil {
		t.Fatal(err)
	}
	if off.ID != first.ID || off.OptedIn {
		t.Errorf("unsubscribed = %+v", off)
	}
	if subs, _ := f.svc.FamilySubscriptions(ctx, fam.ID); len(subs) != 1 {
		t.Errorf("after unsubscribe = %+v", subs)
	}

	// never joined: still a clean opt-out
	if _, err := f.svc.Unsubscribe(ctx, fam.ID, models.TopicPromos); err != nil {
		t.Errorf("unsubscribe unknown topic: %v", err)
	}
	_, err = f.svc.FamilySubscriptions(ctx, "missing")
	wantKind(t, err, ErrNotFound)
}

func TestSetMarketingConsent_WithdrawOptsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.marketingFamily(t)
	for _, topic := range models.Topics {
		if _, err := f.svc.Subscribe(ctx, fam.ID, topic); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.svc.SetMarketingConsent(ctx, fam.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ := f.svc.FindFamily(ctx, fam.ID)
	if got.ConsentMarketing {
		t.Error("consent still set")
	}
	if subs, _ := f.svc.FamilySubscriptions(ctx, fam.ID); len(subs) != 0 {
		t.Errorf("subscriptions after withdrawal = %+v", subs)
	}

	err := f.svc.SetMarketingConsent(ctx, "missing", true)
	wantKind(t, err, ErrNotFound)
}

func TestSubscribersAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.marketingFamily(t), f.marketingFamily(t), f.marketingFamily(t)

	f.svc.Subscribe(ctx, a.ID, models.TopicPromos)
	f.svc.Subscribe(ctx, b.ID, models.TopicPromos)
	f.svc.Subscribe(ctx, b.ID, models.TopicNews)
	f.svc.Subscribe(ctx, c.ID, models.TopicEvents)

	// consent revoked behind the subscription's back
	f.db.Model(&models.Family{}).Where("id = ?", a.ID).Update("consent_marketing", false)

	fs, err := f.svc.Subscribers(ctx, models.TopicPromos)
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 1 || fs[0].ID != b.ID {
		t.Fatalf("promo subscribers = %+v", fs)
	}

	st, err := f.svc.SubscriptionStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := SubscriptionStats{Events: 1, Promos: 1, News: 1, Total: 3}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
}
