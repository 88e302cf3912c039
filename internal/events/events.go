package events

import (
	"context"
	"log"
	"sync"
	"time"
)

type Type string

const (
	VisitConfirmed  Type = "visit.confirmed"
	VoucherIssued   Type = "voucher.issued"
	VoucherRedeemed Type = "voucher.redeemed"
)

type Event struct {
	Type      Type
	Timestamp time.Time
	Data      any
}

// VisitConfirmedData is published after a confirmation commits.
type VisitConfirmedData struct {
	FamilyID   string
	VisitID    string
	Source     string
	Current    int
	Target     int
	Percentage int
	VoucherID  string // empty unless this visit completed a cycle
}

type VoucherIssuedData struct {
	FamilyID   string
	VoucherID  string
	Code       string
	ValidUntil time.Time
}

type VoucherRedeemedData struct {
	FamilyID  string
	VoucherID string
	Code      string
	StaffID   string
}

type Handler func(ctx context.Context, e Event) error

// Bus fans events out to subscribers on their own goroutines, so publishers
// never wait on delivery.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	wg       sync.WaitGroup
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) Publish(ctx context.Context, t Type, data any) {
	b.mu.RLock()
	hs := b.handlers[t]
	b.mu.RUnlock()
	if len(hs) == 0 {
		return
	}

	e := Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
	// Handlers outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, h := range hs {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			if err := h(ctx, e); err != nil {
				log.Printf("event %s handler: %v", t, err)
			}
		}(h)
	}
}

// Wait blocks until every in-flight handler has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}
