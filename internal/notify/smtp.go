package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"unicode"
)

// sendMailFunc matches smtp.SendMail so tests can capture messages.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends confirmations via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr     string
	from     string
	sendMail sendMailFunc
}

// NewSMTPSender builds a sender for host:port. An empty from falls back to a
// local no-reply address.
func NewSMTPSender(host, port, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@coaching.local"
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%s", host, port),
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// SendBookingEmail implements Sink. Bookings without an address are skipped.
func (s *SMTPSender) SendBookingEmail(ctx context.Context, email string, n BookingNotice) error {
	to := strings.TrimSpace(email)
	if to == "" {
		return nil
	}
	if strings.ContainsAny(to, "\r\n") {
		return errors.New("smtp: invalid recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(s.from, to, subject(n), body(n))
	if err := s.sendMail(s.addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		headerValue(from),
		headerValue(to),
		headerValue(subject),
		body,
	)
}

// headerValue drops control characters so a value cannot end its header line.
func headerValue(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
}
