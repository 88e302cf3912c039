package bot

import (
	"fmt"
	"time"

	"github.com/teddyfriends/loyalty/internal/models"
)

const (
	msgVisitProgress   = "visit_progress"
	msgVoucherIssued   = "voucher_issued"
	msgVoucherRedeemed = "voucher_redeemed"
	msgVoucherReminder = "voucher_reminder"
	msgCode            = "code"
	msgCard            = "card"
	msgCardVoucher     = "card_voucher"
	msgQR              = "qr"
	msgLangPrompt      = "lang_prompt"
	msgLangSet         = "lang_set"
	msgWelcome         = "welcome"
	msgNotRegistered   = "not_registered"
	msgHelp            = "help"
	msgError           = "error"
	msgSubscribed      = "subscribed"
	msgUnsubscribed    = "unsubscribed"
)

// topicKey is the message key of a topic's display name.
func topicKey(t models.Topic) string { return "topic_" + string(t) }

var messages = map[models.Lang]map[string]string{
	models.LangEN: {
		msgVisitProgress:   "🧸 Visit counted! %d/%d towards your free visit.",
		msgVoucherIssued:   "🎉 You earned a free visit! Voucher %s, valid until %s. Show this QR at the desk.",
		msgVoucherRedeemed: "✅ Voucher %s redeemed. Enjoy your visit!",
		msgVoucherReminder: "⏰ Your voucher %s expires on %s. Don't miss it!",
		msgCode:            "Your visit code: %s\nShow it at the desk within %d minutes.",
		msgCard:            "Loyalty card %s: %d/%d visits.",
		msgCardVoucher:     "Active voucher: %s (valid until %s).",
		msgQR:              "Your family QR. Show it at the desk.",
		msgLangPrompt:      "Choose a language: reply EN or PT.",
		msgLangSet:         "Language set to English.",
		msgWelcome:         "Welcome to Teddy & Friends! Your client code is %s.",
		msgNotRegistered:   "You are not registered yet. Reply JOIN to join our loyalty programme.",
		msgHelp:            "Reply CODE for a visit code, CARD for your progress, QR for your family QR, LANG to change language. PROMO, NEWS or EVENTS subscribes you to our messages, STOP unsubscribes.",
		msgError:           "Sorry, something went wrong. Please ask at the desk.",
		msgSubscribed:      "📣 You're subscribed to %s. Reply STOP to unsubscribe.",
		msgUnsubscribed:    "You will no longer receive our marketing messages.",
		"topic_EVENTS":     "events",
		"topic_PROMOS":     "promotions",
		"topic_NEWS":       "news",
	},
	models.LangPT: {
		msgVisitProgress:   "🧸 Visita registada! %d/%d para a sua visita grátis.",
		msgVoucherIssued:   "🎉 Ganhou uma visita grátis! Voucher %s, válido até %s. Mostre este QR no balcão.",
		msgVoucherRedeemed: "✅ Voucher %s utilizado. Boa visita!",
		msgVoucherReminder: "⏰ O seu voucher %s expira a %s. Não se esqueça!",
		msgCode:            "O seu código de visita: %s\nMostre-o no balcão nos próximos %d minutos.",
		msgCard:            "Cartão %s: %d/%d visitas.",
		msgCardVoucher:     "Voucher ativo: %s (válido até %s).",
		msgQR:              "O QR da sua família. Mostre-o no balcão.",
		msgLangPrompt:      "Escolha o idioma: responda EN ou PT.",
		msgLangSet:         "Idioma alterado para português.",
		msgWelcome:         "Bem-vindo ao Teddy & Friends! O seu código de cliente é %s.",
		msgNotRegistered:   "Ainda não está registado. Responda ADERIR para aderir ao programa de fidelização.",
		msgHelp:            "Responda CODIGO para um código de visita, CARTAO para o progresso, QR para o QR da família, IDIOMA para mudar o idioma. PROMO, NOVIDADES ou EVENTOS para receber as nossas mensagens, PARAR para cancelar.",
		msgError:           "Desculpe, ocorreu um erro. Por favor peça ajuda no balcão.",
		msgSubscribed:      "📣 Subscreveu %s. Responda PARAR para cancelar.",
		msgUnsubscribed:    "Não voltará a receber as nossas mensagens de marketing.",
		"topic_EVENTS":     "eventos",
		"topic_PROMOS":     "promoções",
		"topic_NEWS":       "novidades",
	},
}

// T renders a message, falling back to English.
func T(lang models.Lang, key string, args ...any) string {
	tmpl, ok := messages[lang][key]
	if !ok {
		tmpl = messages[models.LangEN][key]
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

var cafeLoc = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Lisbon")
	if err != nil {
		return time.UTC
	}
	return loc
}()

func formatDate(lang models.Lang, t time.Time) string {
	t = t.In(cafeLoc)
	if lang == models.LangPT {
		return t.Format("02/01/2006")
	}
	return t.Format("02 Jan 2006")
}
