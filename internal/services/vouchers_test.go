package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teddyfriends/loyalty/internal/models"
	"gorm.io/gorm"
)

func TestIssueVoucher_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)

	first, err := f.svc.IssueVoucher(ctx, fam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Created {
		t.Error("first issue reported Created=false")
	}
	if want := t0.Add(30 * 24 * time.Hour); !first.ValidUntil.Equal(want) {
		t.Errorf("valid until %s, want %s", first.ValidUntil, want)
	}

	second, err := f.svc.IssueVoucher(ctx, fam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created || second.VoucherID != first.VoucherID {
		t.Errorf("second issue = %+v, want existing %s", second, first.VoucherID)
	}

	_, err = f.svc.IssueVoucher(ctx, "missing")
	wantKind(t, err, ErrNotFound)
}

func TestIssueVoucher_ReplacesLapsedActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)

	old, _ := f.svc.IssueVoucher(ctx, fam.ID)
	f.clock.Advance(31 * 24 * time.Hour)

	fresh, err := f.svc.IssueVoucher(ctx, fam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !fresh.Created || fresh.VoucherID == old.VoucherID {
		t.Fatalf("expected a new voucher, got %+v", fresh)
	}
	v, _ := f.svc.FindVoucher(ctx, old.Code)
	if v.Status != models.VoucherExpired {
		t.Errorf("old voucher status = %s, want EXPIRED", v.Status)
	}
}

// A rival ACTIVE voucher committed between the lookup and the insert trips
// the partial unique index; the issuer must hand back the rival's voucher.
func TestIssueVoucher_LosesRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)

	now := f.clock.Now()
	rival := models.Voucher{
		ID:         "rival-voucher",
		Code:       "TF-RIVAL",
		FamilyID:   fam.ID,
		Status:     models.VoucherActive,
		IssuedAt:   now,
		ValidUntil: now.Add(time.Hour),
	}
	var inserted bool
	err := f.db.Callback().Query().After("gorm:query").Register("test:rival_voucher", func(tx *gorm.DB) {
		if inserted || tx.Error != nil || tx.Statement.Table != "vouchers" {
			return
		}
		inserted = true
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(&rival).Error; err != nil {
			t.Errorf("insert rival: %v", err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	iv, err := f.svc.IssueVoucher(ctx, fam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("rival voucher was never inserted")
	}
	if iv.Created || iv.VoucherID != rival.ID || iv.Code != rival.Code {
		t.Errorf("issued = %+v, want the rival voucher", iv)
	}

	var n int64
	f.db.Model(&models.Voucher{}).Where("family_id = ?", fam.ID).Count(&n)
	if n != 1 {
		t.Errorf("vouchers for family = %d, want 1", n)
	}
}

func TestRedeemVoucher_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)
	iv, _ := f.svc.IssueVoucher(ctx, fam.ID)

	v, err := f.svc.RedeemVoucher(ctx, iv.Code, "staff-1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if v.Status != models.VoucherRedeemed || v.RedeemedAt == nil || *v.RedeemedByStaffID != "staff-1" {
		t.Errorf("redeemed voucher = %+v", v)
	}

	_, err = f.svc.RedeemVoucher(ctx, iv.Code, "staff-2")
	wantKind(t, err, ErrConflict)
	var e *Error
	if !errors.As(err, &e) || e.Status != models.VoucherRedeemed {
		t.Errorf("conflict status = %v, want REDEEMED", err)
	}

	_, err = f.svc.RedeemVoucher(ctx, "TF-000000", "staff-1")
	wantKind(t, err, ErrNotFound)
	_, err = f.svc.RedeemVoucher(ctx, iv.Code, "")
	wantKind(t, err, ErrInvalidRequest)
}

func TestRedeemVoucher_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)
	iv, _ := f.svc.IssueVoucher(ctx, fam.ID)

	f.clock.Set(iv.ValidUntil)
	_, err := f.svc.RedeemVoucher(ctx, iv.Code, "staff-1")
	wantKind(t, err, ErrExpired)

	v, _ := f.svc.FindVoucher(ctx, iv.Code)
	if v.Status != models.VoucherExpired {
		t.Errorf("status = %s, want EXPIRED persisted", v.Status)
	}

	_, err = f.svc.RedeemVoucher(ctx, iv.Code, "staff-1")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindConflict || e.Status != models.VoucherExpired {
		t.Errorf("second redeem = %v, want conflict with EXPIRED", err)
	}
}

// TestRedeemVoucher_ResetKeepsNewProgress checks both sides of the reset
// rule: visits after issuance survive redemption, a stale count does not.
func TestRedeemVoucher_ResetKeepsNewProgress(t *testing.T) {
	t.Run("visits after issuance", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		fam := f.family(t)

		var code string
		for i := 0; i < 7; i++ {
			if res := f.desk(t, fam.ID); res.VoucherIssued != nil {
				code = res.VoucherIssued.Code
			}
			f.clock.Advance(31 * time.Minute)
		}
		if code == "" {
			t.Fatal("no voucher issued")
		}

		if _, err := f.svc.RedeemVoucher(ctx, code, "staff-1"); err != nil {
			t.Fatal(err)
		}
		if c := f.counter(t, fam.ID); c.CurrentCycleCount != 2 || c.TotalVisits != 7 {
			t.Errorf("counter after redeem = %d/%d, want 2/7", c.CurrentCycleCount, c.TotalVisits)
		}
	})

	t.Run("no visits after issuance", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		fam := f.family(t)

		for i := 0; i < 3; i++ {
			f.desk(t, fam.ID)
			f.clock.Advance(31 * time.Minute)
		}
		iv, _ := f.svc.IssueVoucher(ctx, fam.ID)
		f.clock.Advance(time.Hour)

		if _, err := f.svc.RedeemVoucher(ctx, iv.Code, "staff-1"); err != nil {
			t.Fatal(err)
		}
		c := f.counter(t, fam.ID)
		if c.CurrentCycleCount != 0 || c.TotalVisits != 3 {
			t.Errorf("counter = %d/%d, want 0/3", c.CurrentCycleCount, c.TotalVisits)
		}
		if !c.CycleStartedAt.Equal(f.clock.Now()) {
			t.Errorf("cycle started at %s, want %s", c.CycleStartedAt, f.clock.Now())
		}
	})
}

func TestRedeemVoucher_KeepsCycleCompletedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)

	var code string
	for i := 0; i < 5; i++ {
		if res := f.desk(t, fam.ID); res.VoucherIssued != nil {
			code = res.VoucherIssued.Code
		}
		if i < 4 {
			f.clock.Advance(31 * time.Minute)
		}
	}
	if code == "" {
		t.Fatal("no voucher issued")
	}
	completed := f.clock.Now()

	f.clock.Advance(time.Hour)
	if _, err := f.svc.RedeemVoucher(ctx, code, "staff-1"); err != nil {
		t.Fatal(err)
	}
	c := f.counter(t, fam.ID)
	if c.CurrentCycleCount != 0 {
		t.Errorf("cycle count = %d, want 0", c.CurrentCycleCount)
	}
	if c.CycleCompletedAt == nil || !c.CycleCompletedAt.Equal(completed) {
		t.Errorf("cycle completed at %v, want %s", c.CycleCompletedAt, completed)
	}
}

func TestRedeemVoucherQR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fam := f.family(t)
	iv, _ := f.svc.IssueVoucher(ctx, fam.ID)
	v, _ := f.svc.FindVoucher(ctx, iv.Code)

	got, err := f.svc.RedeemVoucherQR(ctx, v.QRData, "staff-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.VoucherRedeemed {
		t.Errorf("status = %s", got.Status)
	}

	_, err = f.svc.RedeemVoucherQR(ctx, v.QRData[:len(v.QRData)-2]+"0}", "staff-1")
	wantKind(t, err, ErrInvalidSignature)
}

func TestMarkExpiredVouchers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.family(t), f.family(t)

	f.svc.IssueVoucher(ctx, a.ID)
	f.clock.Advance(time.Hour)
	f.svc.IssueVoucher(ctx, b.ID)

	f.clock.Set(t0.Add(30 * 24 * time.Hour))
	n, err := f.svc.MarkExpiredVouchers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("marked %d, want 1", n)
	}

	st, err := f.svc.VoucherStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st != (VoucherStats{Total: 2, Active: 1, Redeemed: 0, Expired: 1}) {
		t.Errorf("stats = %+v", st)
	}
}
