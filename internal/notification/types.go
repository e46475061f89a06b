package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/sos-villages/signalement/internal/shared/types"
)

// Kind identifies why a user is notified. A user receives each kind at most once per case.
type Kind string

const (
	KindCaseAssigned       Kind = "CASE_ASSIGNED"
	KindCaseDocsReady      Kind = "CASE_DOCS_READY"
	KindCaseDirValidated   Kind = "CASE_DIR_VALIDATED"
	KindCaseSigned         Kind = "CASE_SIGNED"
	KindPendingReminder24h Kind = "PENDING_24H_REMINDER"
)

// Channel is an out-of-band delivery channel
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Notification is an in-app inbox record
type Notification struct {
	ID        types.ID   `json:"id"`
	UserID    types.ID   `json:"user_id"`
	CaseID    *types.ID  `json:"case_id,omitempty"`
	Type      Kind       `json:"type"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// New creates an unread notification of kind for userID about caseID
func New(userID, caseID types.ID, kind Kind, at time.Time) *Notification {
	return &Notification{
		ID:        types.NewID(),
		UserID:    userID,
		CaseID:    caseID.Ptr(),
		Type:      kind,
		Message:   Compose(kind, caseID).Body,
		CreatedAt: at,
	}
}

// Recipient is a user with the contact data delivery needs
type Recipient struct {
	UserID         types.ID `json:"user_id"`
	FullName       string   `json:"full_name"`
	Email          string   `json:"email,omitempty"`
	WhatsAppNumber string   `json:"whatsapp_number,omitempty"`
}

// Intent is one message to hand to a delivery provider once the state change has committed
type Intent struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
}

// Message is the rendered text of a notification kind
type Message struct {
	Subject string
	Body    string
}

// Compose renders the message for kind about caseID
func Compose(kind Kind, caseID types.ID) Message {
	ref := shortRef(caseID)
	switch kind {
	case KindCaseAssigned:
		return Message{
			Subject: "Nouveau signalement assigné",
			Body:    fmt.Sprintf("Un nouveau signalement (%s) vous a été assigné.", ref),
		}
	case KindCaseDocsReady:
		return Message{
			Subject: "Signalement prêt pour validation",
			Body:    fmt.Sprintf("Les documents du signalement %s sont complets et attendent votre validation.", ref),
		}
	case KindCaseDirValidated:
		return Message{
			Subject: "Signalement validé par le directeur du village",
			Body:    fmt.Sprintf("Le signalement %s a été validé par le directeur du village et attend la validation sauvegarde.", ref),
		}
	case KindCaseSigned:
		return Message{
			Subject: "Signalement signé",
			Body:    fmt.Sprintf("Le signalement %s est signé et peut être clôturé.", ref),
		}
	case KindPendingReminder24h:
		return Message{
			Subject: "Rappel: signalement en attente",
			Body:    fmt.Sprintf("Le signalement %s est en attente depuis plus de 24h.", ref),
		}
	default:
		return Message{Subject: "Notification", Body: fmt.Sprintf("Mise à jour du signalement %s.", ref)}
	}
}

// Intents builds one intent per channel the recipients can be reached on
func Intents(kind Kind, caseID types.ID, recipients []Recipient, channels ...Channel) []Intent {
	msg := Compose(kind, caseID)

	var intents []Intent
	for _, r := range recipients {
		for _, ch := range channels {
			switch ch {
			case ChannelEmail:
				if r.Email != "" {
					intents = append(intents, Intent{Channel: ch, To: r.Email, Subject: msg.Subject, Body: msg.Body})
				}
			case ChannelWhatsApp:
				if r.WhatsAppNumber != "" {
					intents = append(intents, Intent{Channel: ch, To: WhatsAppAddress(r.WhatsAppNumber), Subject: msg.Subject, Body: msg.Body})
				}
			}
		}
	}
	return intents
}

// WhatsAppAddress prefixes a phone number with the whatsapp: scheme
func WhatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func shortRef(id types.ID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
