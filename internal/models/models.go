package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Lang string

const (
	LangEN Lang = "EN"
	LangPT Lang = "PT"
)

// VisitSource: CODE | QR | DESK
type VisitSource string

const (
	SourceCode VisitSource = "CODE"
	SourceQR   VisitSource = "QR"
	SourceDesk VisitSource = "DESK"
)

// VoucherStatus: ACTIVE -> REDEEMED | EXPIRED
type VoucherStatus string

const (
	VoucherActive   VoucherStatus = "ACTIVE"
	VoucherRedeemed VoucherStatus = "REDEEMED"
	VoucherExpired  VoucherStatus = "EXPIRED"
)

type Family struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Phone      *string `gorm:"uniqueIndex" json:"phone"` // normalized +351...
	WaID       *string `gorm:"uniqueIndex" json:"waId"`
	Lang       Lang    `gorm:"size:2;not null;default:EN" json:"lang"`
	ClientCode string  `gorm:"uniqueIndex;not null" json:"clientCode"` // e.g., TF-000042
	KidsCount  *int    `json:"kidsCount"`

	ConsentMarketing      bool       `json:"consentMarketing"`
	ConsentDataProcessing bool       `json:"consentDataProcessing"`
	ConsentAt             *time.Time `json:"consentAt"`

	LoyaltyCounter *LoyaltyCounter `json:"loyaltyCounter,omitempty"`
	Vouchers       []Voucher       `json:"vouchers,omitempty"`
}

// LoyaltyCounter is 1:1 with Family. A missing row reads as zero counts.
type LoyaltyCounter struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	FamilyID          string     `gorm:"uniqueIndex;not null;size:36" json:"familyId"`
	CurrentCycleCount int        `gorm:"not null;default:0" json:"currentCycleCount"`
	TotalVisits       int        `gorm:"not null;default:0" json:"totalVisits"`
	LastVisitAt       *time.Time `json:"lastVisitAt"`
	CycleStartedAt    time.Time  `json:"cycleStartedAt"`
	CycleCompletedAt  *time.Time `json:"cycleCompletedAt"`
}

type VisitCode struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	Code      string     `gorm:"uniqueIndex;not null;size:6" json:"code"`
	FamilyID  string     `gorm:"index;not null;size:36" json:"familyId"`
	StaffID   *string    `json:"staffId"`
	ExpiresAt time.Time  `gorm:"index" json:"expiresAt"`
	IsUsed    bool       `gorm:"not null;default:false" json:"isUsed"`
	UsedAt    *time.Time `json:"usedAt"`
}

// Visit is an append-only audit row, one per confirmed visit.
type Visit struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	FamilyID   string      `gorm:"index;not null;size:36" json:"familyId"`
	Source     VisitSource `gorm:"size:8;not null" json:"source"`
	StaffID    *string     `json:"staffId"`
	Note       *string     `json:"note"`
	SourceData *string     `json:"sourceData"` // code or raw QR payload
}

type Voucher struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Code              string        `gorm:"uniqueIndex;not null" json:"code"` // e.g., TF-482913
	FamilyID          string        `gorm:"index;not null;size:36" json:"familyId"`
	Status            VoucherStatus `gorm:"size:10;not null;default:ACTIVE" json:"status"`
	IssuedAt          time.Time     `json:"issuedAt"`
	ValidUntil        time.Time     `gorm:"index" json:"validUntil"`
	RedeemedAt        *time.Time    `json:"redeemedAt"`
	RedeemedByStaffID *string       `json:"redeemedByStaffId"`
	QRData            string        `json:"qrData"` // signed voucher payload
}

// ScannedQR records a consumed family visit QR so the same payload cannot be
// confirmed twice.
type ScannedQR struct {
	ID        string `gorm:"primaryKey;size:36"`
	Signature string `gorm:"uniqueIndex;not null"`
	FamilyID  string `gorm:"index;not null;size:36"`
	UsedAt    time.Time
}

// Topic is a marketing list a family can opt into: EVENTS | PROMOS | NEWS
type Topic string

const (
	TopicEvents Topic = "EVENTS"
	TopicPromos Topic = "PROMOS"
	TopicNews   Topic = "NEWS"
)

var Topics = []Topic{TopicEvents, TopicPromos, TopicNews}

// Subscription is one family's opt-in to one topic. Opting out keeps the row
// with OptedIn false.
type Subscription struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	FamilyID string `gorm:"uniqueIndex:ux_subscriptions_family_topic;not null;size:36" json:"familyId"`
	Topic    Topic  `gorm:"uniqueIndex:ux_subscriptions_family_topic;size:8;not null" json:"topic"`
	OptedIn  bool   `gorm:"not null;default:false" json:"optedIn"`
}

// BroadcastStatus: PENDING -> SENT | FAILED
type BroadcastStatus string

const (
	BroadcastPending BroadcastStatus = "PENDING"
	BroadcastSent    BroadcastStatus = "SENT"
	BroadcastFailed  BroadcastStatus = "FAILED"
)

// Broadcast is one message sent to every consenting subscriber of a topic.
type Broadcast struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Topic     Topic           `gorm:"size:8;not null" json:"topic"`
	Title     string          `gorm:"not null" json:"title"`
	MessageEN string          `json:"messageEn"`
	MessagePT string          `json:"messagePt"`
	Status    BroadcastStatus `gorm:"size:8;not null;default:PENDING" json:"status"`
	CreatedBy *string         `json:"createdBy"`
	SentAt    *time.Time      `json:"sentAt"`
	Sent      int             `gorm:"not null;default:0" json:"sent"`
	Failed    int             `gorm:"not null;default:0" json:"failed"`
	Skipped   int             `gorm:"not null;default:0" json:"skipped"`
}

func (f *Family) BeforeCreate(*gorm.DB) error         { setID(&f.ID); return nil }
func (c *LoyaltyCounter) BeforeCreate(*gorm.DB) error { setID(&c.ID); return nil }
func (c *VisitCode) BeforeCreate(*gorm.DB) error      { setID(&c.ID); return nil }
func (v *Visit) BeforeCreate(*gorm.DB) error          { setID(&v.ID); return nil }
func (v *Voucher) BeforeCreate(*gorm.DB) error        { setID(&v.ID); return nil }
func (q *ScannedQR) BeforeCreate(*gorm.DB) error      { setID(&q.ID); return nil }
func (s *Subscription) BeforeCreate(*gorm.DB) error   { setID(&s.ID); return nil }
func (b *Broadcast) BeforeCreate(*gorm.DB) error      { setID(&b.ID); return nil }

func setID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
