package bot

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/teddyfriends/loyalty/internal/cache"
	"github.com/teddyfriends/loyalty/internal/models"
	"github.com/teddyfriends/loyalty/internal/services"
)

const stepLang = "lang"

var topicKeywords = map[string]models.Topic{
	"promo":     models.TopicPromos,
	"promos":    models.TopicPromos,
	"promocoes": models.TopicPromos,
	"news":      models.TopicNews,
	"novidades": models.TopicNews,
	"events":    models.TopicEvents,
	"eventos":   models.TopicEvents,
}

// session is the per-number conversation state kept between messages.
type session struct {
	FamilyID string `json:"familyId,omitempty"`
	Step     string `json:"step,omitempty"`
}

// Dispatcher answers inbound WhatsApp keywords.
type Dispatcher struct {
	svc        *services.Service
	notifier   *Notifier
	sessions   cache.Cache
	sessionTTL time.Duration
}

func NewDispatcher(svc *services.Service, n *Notifier, sessions cache.Cache, ttl time.Duration) *Dispatcher {
	return &Dispatcher{svc: svc, notifier: n, sessions: sessions, sessionTTL: ttl}
}

func sessionKey(waID string) string { return "wa:session:" + waID }

func keyword(body string) string {
	w := strings.ToLower(strings.TrimSpace(body))
	if i := strings.IndexAny(w, " \n\t"); i >= 0 {
		w = w[:i]
	}
	r := strings.NewReplacer("ó", "o", "ã", "a", "á", "a", "ê", "e", "ç", "c", "õ", "o")
	return r.Replace(strings.Trim(w, "/!.?"))
}

// Handle processes one inbound message and replies to the sender.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) {
	if in.WaID == "" {
		return
	}
	var sess session
	if err := cache.GetJSON(ctx, d.sessions, sessionKey(in.WaID), &sess); err != nil && !errors.Is(err, cache.ErrNotFound) {
		log.Printf("whatsapp session %s: %v", in.WaID, err)
	}

	f := d.lookup(ctx, in, &sess)
	kw := keyword(in.Body)

	if f == nil {
		if kw == "join" || kw == "aderir" {
			d.join(ctx, in, &sess)
			return
		}
		lang := models.LangEN
		if kw == "ola" || kw == "bom" || kw == "boa" {
			lang = models.LangPT
		}
		d.reply(ctx, nil, in.Phone(), T(lang, msgNotRegistered), "")
		return
	}

	if sess.Step == stepLang {
		if lang, ok := parseLang(kw); ok {
			sess.Step = ""
			if err := d.svc.SetFamilyLang(ctx, f.ID, lang); err != nil {
				d.fail(ctx, f, err)
				return
			}
			f.Lang = lang
			d.save(ctx, in.WaID, sess)
			d.reply(ctx, f, in.Phone(), T(lang, msgLangSet), "")
			return
		}
		sess.Step = ""
	}

	switch kw {
	case "code", "codigo":
		code, err := d.svc.IssueCode(ctx, f.ID, 0, nil)
		if err != nil {
			d.fail(ctx, f, err)
			return
		}
		mins := int(d.svc.Config().CodeTTL / time.Minute)
		d.reply(ctx, f, in.Phone(), T(f.Lang, msgCode, code.Code, mins), "")

	case "card", "cartao", "status":
		st, err := d.svc.LoyaltyStatus(ctx, f.ID)
		if err != nil {
			d.fail(ctx, f, err)
			return
		}
		body := T(f.Lang, msgCard, st.ClientCode, st.Progress.Current, st.Progress.Target)
		media := ""
		if len(st.ActiveVouchers) > 0 {
			v := st.ActiveVouchers[0]
			body += "\n" + T(f.Lang, msgCardVoucher, v.Code, formatDate(f.Lang, v.ValidUntil))
			media = d.notifier.VoucherQRURL(v.ID)
		}
		d.reply(ctx, f, in.Phone(), body, media)

	case "qr":
		d.reply(ctx, f, in.Phone(), T(f.Lang, msgQR), d.notifier.FamilyQRURL(f.ID))

	case "promo", "promos", "promocoes", "news", "novidades", "events", "eventos":
		d.subscribe(ctx, f, in.Phone(), topicKeywords[kw])

	case "stop", "parar":
		if err := d.svc.SetMarketingConsent(ctx, f.ID, false); err != nil {
			d.fail(ctx, f, err)
			return
		}
		d.reply(ctx, f, in.Phone(), T(f.Lang, msgUnsubscribed), "")

	case "lang", "idioma", "language":
		sess.Step = stepLang
		d.reply(ctx, f, in.Phone(), T(f.Lang, msgLangPrompt), "")

	default:
		d.reply(ctx, f, in.Phone(), T(f.Lang, msgHelp), "")
	}
	d.save(ctx, in.WaID, sess)
}

func (d *Dispatcher) lookup(ctx context.Context, in Inbound, sess *session) *models.Family {
	if sess.FamilyID != "" {
		if f, err := d.svc.FindFamily(ctx, sess.FamilyID); err == nil {
			return f
		}
		sess.FamilyID = ""
	}
	f, err := d.svc.FindFamilyByWaID(ctx, in.WaID)
	if errors.Is(err, services.ErrNotFound) {
		f, err = d.svc.FindFamilyByAnyPhone(ctx, in.Phone())
	}
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			log.Printf("whatsapp lookup %s: %v", in.WaID, err)
		}
		return nil
	}
	sess.FamilyID = f.ID
	return f
}

func (d *Dispatcher) join(ctx context.Context, in Inbound, sess *session) {
	lang := models.LangEN
	if keyword(in.Body) == "aderir" {
		lang = models.LangPT
	}
	f, err := d.svc.CreateFamily(ctx, services.NewFamily{
		Phone:                 in.Phone(),
		WaID:                  in.WaID,
		Lang:                  lang,
		ConsentDataProcessing: true,
	})
	if err != nil {
		log.Printf("whatsapp join %s: %v", in.WaID, err)
		d.reply(ctx, nil, in.Phone(), T(lang, msgError), "")
		return
	}
	sess.FamilyID = f.ID
	d.save(ctx, in.WaID, *sess)
	d.reply(ctx, f, in.Phone(), T(lang, msgWelcome, f.ClientCode)+"\n"+T(lang, msgHelp), "")
}

// subscribe treats the keyword as the family's marketing opt-in.
func (d *Dispatcher) subscribe(ctx context.Context, f *models.Family, to string, topic models.Topic) {
	if !f.ConsentMarketing {
		if err := d.svc.SetMarketingConsent(ctx, f.ID, true); err != nil {
			d.fail(ctx, f, err)
			return
		}
	}
	if _, err := d.svc.Subscribe(ctx, f.ID, topic); err != nil {
		d.fail(ctx, f, err)
		return
	}
	d.reply(ctx, f, to, T(f.Lang, msgSubscribed, T(f.Lang, topicKey(topic))), "")
}

func (d *Dispatcher) save(ctx context.Context, waID string, sess session) {
	if err := cache.SetJSON(ctx, d.sessions, sessionKey(waID), sess, d.sessionTTL); err != nil {
		log.Printf("whatsapp session %s: %v", waID, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, f *models.Family, err error) {
	log.Printf("whatsapp family=%s: %v", f.ID, err)
	d.reply(ctx, f, recipient(f), T(f.Lang, msgError), "")
}

func (d *Dispatcher) reply(ctx context.Context, f *models.Family, to, body, mediaURL string) {
	if f == nil {
		if _, err := d.notifier.sender.SendText(ctx, to, body); err != nil {
			log.Printf("whatsapp reply to %s: %v", to, err)
		}
		return
	}
	if err := d.notifier.deliver(ctx, f, "reply", body, mediaURL); err != nil {
		log.Printf("whatsapp reply to %s: %v", to, err)
	}
}

func parseLang(kw string) (models.Lang, bool) {
	switch kw {
	case "en", "english", "1":
		return models.LangEN, true
	case "pt", "portugues", "2":
		return models.LangPT, true
	}
	return "", false
}
