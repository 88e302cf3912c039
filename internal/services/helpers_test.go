package services

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/clock"
	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/signature"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.Fake
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clk := clock.NewFake(t0)
	gdb, err := db.Open(db.Options{
		Path:   filepath.Join(t.TempDir(), "loyalty.db"),
		Now:    clk.Now,
		Silent: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	opts = append([]Option{WithClock(clk)}, opts...)
	return &fixture{
		svc:   New(gdb, signature.New("test-secret"), DefaultConfig(), opts...),
		db:    gdb,
		clock: clk,
	}
}

func (f *fixture) family(t *testing.T) *models.Family {
	t.Helper()
	fam, err := f.svc.CreateFamily(context.Background(), NewFamily{})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return fam
}

func (f *fixture) counter(t *testing.T, familyID string) models.LoyaltyCounter {
	t.Helper()
	var c models.LoyaltyCounter
	if err := f.db.Where("family_id = ?", familyID).First(&c).Error; err != nil {
		t.Fatalf("load counter: %v", err)
	}
	return c
}

func (f *fixture) desk(t *testing.T, familyID string) *ConfirmationResult {
	t.Helper()
	res, err := f.svc.ConfirmVisit(context.Background(), ConfirmRequest{FamilyID: familyID})
	if err != nil {
		t.Fatalf("desk visit: %v", err)
	}
	return res
}

func wantKind(t *testing.T, err error, target *Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", target.Kind)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected %s error, got %s: %v", target.Kind, KindOf(err), err)
	}
}

// digits returns a reader whose successive 3-byte draws decode to the given
// numbers in genCode6.
func digits(ns ...int) *bytes.Reader {
	var b []byte
	for _, n := range ns {
		b = append(b, byte(n>>16), byte(n>>8), byte(n))
	}
	return bytes.NewReader(b)
}

func strptr(s string) *string { return &s }
