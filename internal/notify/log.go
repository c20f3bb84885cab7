package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink records notices in the structured log. It is always enabled so a
// booking confirmation leaves a trace even without SMTP or Kafka.
type LogSink struct {
	Logger zerolog.Logger
}

// SendBookingEmail implements Sink.
func (l LogSink) SendBookingEmail(_ context.Context, email string, n BookingNotice) error {
	l.Logger.Info().
		Str("booking_id", n.BookingID).
		Bool("has_email", email != "").
		Str("start", n.StartISO()).
		Int("minutes", n.Minutes).
		Float64("price_eur", n.PriceEUR).
		Msg("booking confirmation")
	return nil
}
