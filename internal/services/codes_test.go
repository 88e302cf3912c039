package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/teddyfriends/loyalty/internal/models"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestGenCode6_Format(t *testing.T) {
	cases := map[int]string{0: "000000", 1: "000001", 999_999: "999999", 1_000_000: "000000", 15_999_999: "999999"}
	for n, want := range cases {
		got, err := genCode6(digits(n))
		if err != nil {
			t.Fatalf("genCode6(%d): %v", n, err)
		}
		if got != want {
			t.Errorf("genCode6(%d) = %q, want %q", n, got, want)
		}
	}
}

// TestGenCode6_RejectsBiasedDraws verifies that draws at or above 16,000,000
// are discarded rather than folded into the range.
func TestGenCode6_RejectsBiasedDraws(t *testing.T) {
	got, err := genCode6(digits(16_000_000, 16_777_215, 42))
	if err != nil {
		t.Fatal(err)
	}
	if got != "000042" {
		t.Errorf("got %q, want 000042", got)
	}
}

func TestIssueCode_SingleActivePerFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)

	first, err := f.svc.IssueCode(ctx, fam.ID, 0, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !sixDigits.MatchString(first.Code) {
		t.Errorf("code %q is not six digits", first.Code)
	}
	if want := t0.Add(10 * time.Minute); !first.ExpiresAt.Equal(want) {
		t.Errorf("expires at %s, want %s", first.ExpiresAt, want)
	}

	f.clock.Advance(time.Minute)
	second, err := f.svc.IssueCode(ctx, fam.ID, 0, strptr("staff-1"))
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}

	active, err := f.svc.ActiveCodes(ctx, fam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Code != second.Code {
		t.Fatalf("active codes = %+v, want only %s", active, second.Code)
	}

	if first.Code != second.Code {
		_, err = f.svc.ConfirmVisit(ctx, ConfirmRequest{Code: first.Code})
		wantKind(t, err, ErrConflict)
	}
}

func TestIssueCode_UnknownFamily(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IssueCode(context.Background(), "nope", 0, nil)
	wantKind(t, err, ErrNotFound)

	var n int64
	f.db.Model(&models.VisitCode{}).Count(&n)
	if n != 0 {
		t.Errorf("expected no codes stored, got %d", n)
	}
}

func TestIssueCode_RetriesOnCollision(t *testing.T) {
	f := newFixture(t, WithRand(digits(1, 1, 2)))
	ctx := context.Background()
	a, b := f.family(t), f.family(t)

	ca, err := f.svc.IssueCode(ctx, a.ID, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := f.svc.IssueCode(ctx, b.ID, 0, nil)
	if err != nil {
		t.Fatalf("issue after collision: %v", err)
	}
	if ca.Code != "000001" || cb.Code != "000002" {
		t.Errorf("codes = %s, %s; want 000001, 000002", ca.Code, cb.Code)
	}
}

func TestIssueCode_GivesUpAfterMaxAttempts(t *testing.T) {
	draws := make([]int, maxCodeAttempts+1)
	for i := range draws {
		draws[i] = 7
	}
	f := newFixture(t, WithRand(digits(draws...)))
	ctx := context.Background()
	a, b := f.family(t), f.family(t)

	if _, err := f.svc.IssueCode(ctx, a.ID, 0, nil); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.IssueCode(ctx, b.ID, 0, nil)
	wantKind(t, err, ErrInternal)
}

func TestCleanupExpiredCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.family(t), f.family(t), f.family(t)

	if _, err := f.svc.IssueCode(ctx, a.ID, 5*time.Minute, nil); err != nil {
		t.Fatal(err)
	}
	used, err := f.svc.IssueCode(ctx, b.ID, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ConfirmVisit(ctx, ConfirmRequest{Code: used.Code}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.IssueCode(ctx, c.ID, time.Hour, nil); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(6 * time.Minute)
	n, err := f.svc.CleanupExpiredCodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("first sweep deleted %d, want 1 (expired only)", n)
	}

	st, err := f.svc.CodesStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.Active != 1 || st.Used != 1 || st.Expired != 0 {
		t.Errorf("stats = %+v", st)
	}

	f.clock.Advance(25 * time.Hour)
	n, err = f.svc.CleanupExpiredCodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("second sweep deleted %d, want 2", n)
	}
}
