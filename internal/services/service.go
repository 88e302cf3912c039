package services

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/clock"
	"github.com/teddyfriends/loyalty/internal/events"
	"github.com/teddyfriends/loyalty/internal/signature"
)

// Config holds the loyalty policy values. Each window has exactly one
// authoritative value here.
type Config struct {
	LoyaltyTarget     int
	VoucherValidity   time.Duration
	CodeTTL           time.Duration
	RateLimitWindow   time.Duration
	FamilyQRMaxAge    time.Duration
	VoucherQRMaxAge   time.Duration
	UsedCodeRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		LoyaltyTarget:     5,
		VoucherValidity:   30 * 24 * time.Hour,
		CodeTTL:           10 * time.Minute,
		RateLimitWindow:   30 * time.Minute,
		FamilyQRMaxAge:    24 * time.Hour,
		VoucherQRMaxAge:   30 * 24 * time.Hour,
		UsedCodeRetention: 24 * time.Hour,
	}
}

// Publisher receives post-commit events; *events.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, t events.Type, data any)
}

type Service struct {
	db     *gorm.DB
	signer *signature.Signer
	cfg    Config
	clock  clock.Clock
	rand   io.Reader
	pub    Publisher
}

type Option func(*Service)

func WithClock(c clock.Clock) Option   { return func(s *Service) { s.clock = c } }
func WithRand(r io.Reader) Option      { return func(s *Service) { s.rand = r } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }

func New(db *gorm.DB, signer *signature.Signer, cfg Config, opts ...Option) *Service {
	s := &Service{
		db:     db,
		signer: signer,
		cfg:    cfg,
		clock:  clock.System{},
		rand:   rand.Reader,
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.LoyaltyTarget <= 0 {
		s.cfg.LoyaltyTarget = DefaultConfig().LoyaltyTarget
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) now() time.Time { return s.clock.Now() }

func (s *Service) publish(ctx context.Context, t events.Type, data any) {
	if s.pub != nil {
		s.pub.Publish(ctx, t, data)
	}
}
