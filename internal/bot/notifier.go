package bot

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teddyfriends/loyalty/internal/events"
	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/services"
)

const (
	statusSent    = "sent"
	statusFailed  = "failed"
	statusSkipped = "skipped"

	kindBroadcast = "broadcast"
)

// Notifier turns loyalty events into WhatsApp messages and logs every
// delivery attempt.
type Notifier struct {
	svc     *services.Service
	db      *gorm.DB
	sender  Sender
	baseURL string
}

func NewNotifier(svc *services.Service, gdb *gorm.DB, sender Sender, baseURL string) *Notifier {
	return &Notifier{svc: svc, db: gdb, sender: sender, baseURL: baseURL}
}

// Subscribe registers the notifier on the bus.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.VisitConfirmed, n.onVisitConfirmed)
	bus.Subscribe(events.VoucherIssued, n.onVoucherIssued)
	bus.Subscribe(events.VoucherRedeemed, n.onVoucherRedeemed)
}

func (n *Notifier) onVisitConfirmed(ctx context.Context, e events.Event) error {
	d, ok := e.Data.(events.VisitConfirmedData)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Data)
	}
	f, err := n.svc.FindFamily(ctx, d.FamilyID)
	if err != nil {
		return err
	}
	return n.deliver(ctx, f, "visit_confirmed", T(f.Lang, msgVisitProgress, d.Current, d.Target), "")
}

func (n *Notifier) onVoucherIssued(ctx context.Context, e events.Event) error {
	d, ok := e.Data.(events.VoucherIssuedData)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Data)
	}
	f, err := n.svc.FindFamily(ctx, d.FamilyID)
	if err != nil {
		return err
	}
	body := T(f.Lang, msgVoucherIssued, d.Code, formatDate(f.Lang, d.ValidUntil))
	return n.deliver(ctx, f, "voucher_issued", body, n.VoucherQRURL(d.VoucherID))
}

func (n *Notifier) onVoucherRedeemed(ctx context.Context, e events.Event) error {
	d, ok := e.Data.(events.VoucherRedeemedData)
	if !ok {
		return fmt.Errorf("unexpected payload %T", e.Data)
	}
	f, err := n.svc.FindFamily(ctx, d.FamilyID)
	if err != nil {
		return err
	}
	return n.deliver(ctx, f, "voucher_redeemed", T(f.Lang, msgVoucherRedeemed, d.Code), "")
}

func (n *Notifier) VoucherQRURL(voucherID string) string {
	return n.baseURL + "/qr/voucher/" + url.PathEscape(voucherID) + ".png"
}

func (n *Notifier) FamilyQRURL(familyID string) string {
	return n.baseURL + "/qr/family/" + url.PathEscape(familyID) + ".png"
}

// deliver sends body (with an optional image) to the family and records the
// outcome. A family without a WhatsApp number is logged as skipped.
func (n *Notifier) deliver(ctx context.Context, f *models.Family, kind, body, mediaURL string) error {
	_, err := n.send(ctx, f, kind, body, mediaURL, datatypes.JSONMap{})
	return err
}

// send is deliver with extra log metadata; it also reports the logged status.
func (n *Notifier) send(ctx context.Context, f *models.Family, kind, body, mediaURL string, meta datatypes.JSONMap) (string, error) {
	if mediaURL != "" {
		meta["mediaUrl"] = mediaURL
	}
	to := recipient(f)
	if to == "" {
		n.record(ctx, f.ID, kind, "", statusSkipped, nil, meta)
		return statusSkipped, nil
	}
	var (
		sid string
		err error
	)
	if mediaURL != "" {
		sid, err = n.sender.SendMedia(ctx, to, body, mediaURL)
	} else {
		sid, err = n.sender.SendText(ctx, to, body)
	}
	status := statusSent
	if err != nil {
		status = statusFailed
	}
	if sid != "" {
		meta["sid"] = sid
	}
	n.record(ctx, f.ID, kind, to, status, err, meta)
	return status, err
}

// Broadcast sends the message to every consenting subscriber of its topic
// and stores the totals on the broadcast row. A failed delivery is counted,
// never returned.
func (n *Notifier) Broadcast(ctx context.Context, in services.NewBroadcast) (*models.Broadcast, error) {
	b, err := n.svc.CreateBroadcast(ctx, in)
	if err != nil {
		return nil, err
	}
	families, err := n.svc.Subscribers(ctx, b.Topic)
	if err != nil {
		return nil, err
	}

	var res services.BroadcastResult
	for i := range families {
		f := &families[i]
		status, err := n.send(ctx, f, kindBroadcast, broadcastBody(b, f.Lang), "", datatypes.JSONMap{"broadcastId": b.ID})
		switch status {
		case statusSent:
			res.Sent++
		case statusFailed:
			res.Failed++
			log.Printf("broadcast %s to family %s: %v", b.ID, f.ID, err)
		default:
			res.Skipped++
		}
	}
	return n.svc.FinishBroadcast(ctx, b.ID, res)
}

func broadcastBody(b *models.Broadcast, lang models.Lang) string {
	if (lang == models.LangPT && b.MessagePT != "") || b.MessageEN == "" {
		return b.MessagePT
	}
	return b.MessageEN
}

func (n *Notifier) record(ctx context.Context, familyID, kind, to, status string, sendErr error, meta datatypes.JSONMap) {
	row := models.Notification{
		FamilyID:  familyID,
		Channel:   "whatsapp",
		Kind:      kind,
		Recipient: to,
		Status:    status,
	}
	if len(meta) > 0 {
		row.Meta = meta
	}
	if sendErr != nil {
		row.Error = sendErr.Error()
	}
	if err := n.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Printf("notification log: %v", err)
	}
}

func recipient(f *models.Family) string {
	if f.Phone != nil && *f.Phone != "" {
		return *f.Phone
	}
	if f.WaID != nil && *f.WaID != "" {
		return "+" + *f.WaID
	}
	return ""
}
