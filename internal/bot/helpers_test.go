package bot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/cache"
	"github.com/teddyfriends/loyalty/internal/clock"
	"github.com/teddyfriends/loyalty/internal/db"
	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/services"
	"github.com/teddyfriends/loyalty/internal/signature"
)

type sentMsg struct {
	To, Body, Media string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (s *fakeSender) SendText(_ context.Context, to, body string) (string, error) {
	return s.SendMedia(context.Background(), to, body, "")
}

func (s *fakeSender) SendMedia(_ context.Context, to, body, media string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentMsg{To: to, Body: body, Media: media})
	return "SM1", nil
}

func (s *fakeSender) last(t *testing.T) sentMsg {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return s.sent[len(s.sent)-1]
}

type env struct {
	svc    *services.Service
	db     *gorm.DB
	clock  *clock.Fake
	sender *fakeSender
	n      *Notifier
	d      *Dispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	gdb, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "bot.db"), Now: clk.Now, Silent: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	svc := services.New(gdb, signature.New("bot-test-secret"), services.DefaultConfig(), services.WithClock(clk))
	sender := &fakeSender{}
	n := NewNotifier(svc, gdb, sender, "https://loyalty.example")
	return &env{
		svc:    svc,
		db:     gdb,
		clock:  clk,
		sender: sender,
		n:      n,
		d:      NewDispatcher(svc, n, cache.NewInMemoryCache(clk.Now), 30*time.Minute),
	}
}

func (e *env) family(t *testing.T, phone string, lang models.Lang) *models.Family {
	t.Helper()
	f, err := e.svc.CreateFamily(context.Background(), services.NewFamily{Phone: phone, Lang: lang})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return f
}

func (e *env) notifications(t *testing.T, kind string) []models.Notification {
	t.Helper()
	var rows []models.Notification
	if err := e.db.Where("kind = ?", kind).Order("id").Find(&rows).Error; err != nil {
		t.Fatal(err)
	}
	return rows
}
