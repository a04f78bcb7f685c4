package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type EmailSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
}

func NewEmailSender(host string, port int, user, password, from, to string) *EmailSender {
	return &EmailSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		To:       to,
	}
}

// SendEscalation notifies the operations inbox that an effect exhausted its
// retries and was dead-lettered. Plain text on purpose: these go to pagers
// and ticket queues, not customers.
func (s *EmailSender) SendEscalation(effectID, kind, leadID, providerID string, attempts int, lastErr error) error {
	body := fmt.Sprintf(
		"Effect %s (%s) for lead %s / provider %s failed after %d attempts and was moved to the dead-letter queue.\n\nLast error: %v\n\nThe unlock record may be stuck; check the DLQ and the ledger.\n",
		effectID, kind, leadID, providerID, attempts, lastErr,
	)

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", s.To)
	m.SetHeader("Subject", fmt.Sprintf("⚠️ Leadwire escalation: %s for lead %s", kind, leadID))
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send escalation email: %w", err)
	}

	return nil
}
