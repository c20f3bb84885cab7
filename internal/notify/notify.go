// Package notify delivers booking confirmations to customers and downstream
// consumers. Every sink is best effort: callers log failures and never roll
// back a committed booking because a notification could not be sent.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone names in notices must resolve in slim containers
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BookingNotice is the payload handed to every sink after a booking is paid.
type BookingNotice struct {
	BookingID string    `json:"booking_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	Minutes   int       `json:"minutes"`
	Followups int       `json:"followups"`
	PriceEUR  float64   `json:"price_eur"`
	TimeZone  string    `json:"time_zone,omitempty"`
}

// StartISO renders the start instant as RFC 3339 in UTC, or "" when unknown.
func (n BookingNotice) StartISO() string {
	if n.Start.IsZero() {
		return ""
	}
	return n.Start.UTC().Format(time.RFC3339)
}

// LocalStart renders the start in the notice's time zone for humans.
func (n BookingNotice) LocalStart() string {
	if n.Start.IsZero() {
		return "to be scheduled"
	}
	loc := time.UTC
	if n.TimeZone != "" {
		if l, err := time.LoadLocation(n.TimeZone); err == nil {
			loc = l
		}
	}
	return n.Start.In(loc).Format("Mon, 02 Jan 2006 15:04 MST")
}

// Sink sends one booking confirmation.
type Sink interface {
	SendBookingEmail(ctx context.Context, email string, n BookingNotice) error
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

// SendBookingEmail implements Sink.
func (f Fanout) SendBookingEmail(ctx context.Context, email string, n BookingNotice) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.SendBookingEmail(ctx, email, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SessionTitle turns a session type such as "vod_review" into a display
// title ("Vod Review Session"). Only letters, digits and separators survive.
func SessionTitle(sessionType string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			return ' '
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		}
		return -1
	}, sessionType)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "Coaching Session"
	}
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English).String(s) + " Session"
}

// subject and body are shared by the human-facing sinks.
func subject(n BookingNotice) string {
	return fmt.Sprintf("Booking confirmed: %s", n.Title)
}

func body(n BookingNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s is confirmed.\r\n\r\n", n.Title)
	fmt.Fprintf(&b, "When: %s\r\n", n.LocalStart())
	fmt.Fprintf(&b, "Duration: %d minutes\r\n", n.Minutes)
	if n.Followups > 0 {
		fmt.Fprintf(&b, "Follow-ups: %d\r\n", n.Followups)
	}
	fmt.Fprintf(&b, "Price: EUR %.2f\r\n", n.PriceEUR)
	fmt.Fprintf(&b, "Booking reference: %s\r\n", n.BookingID)
	return b.String()
}
