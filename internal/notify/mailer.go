package notify

import (
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
)

// Mailer sends plain-text mail over SMTP. With incomplete SMTP settings it
// degrades to logging the message instead of failing, so the service stays
// usable without a mail account.
type Mailer struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (m *Mailer) Send(to, subject, body string) error {
	if to == "" {
		log.Printf("email skipped: empty recipient")
		return nil
	}
	if m.Host == "" || m.User == "" || m.Password == "" {
		log.Printf("email skipped: smtp not configured, to=%s body=%q", to, body)
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.From, to, subject, body)

	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	auth := smtp.PlainAuth("", m.User, m.Password, m.Host)
	return smtp.SendMail(addr, auth, m.From, []string{to}, []byte(msg))
}
