package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Message is an outbound notification.
type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment string
}

// Mailer delivers notifications.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer records notifications as structured log lines instead of
// sending them.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer writes notification records to w (typically a rotated
// file from logger.Rotating).
func NewLogMailer(w zapcore.WriteSyncer) *LogMailer {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return &LogMailer{log: zap.New(zapcore.NewCore(enc, w, zap.InfoLevel))}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
		zap.Int("attachment_bytes", len(msg.Attachment)),
	)
	return nil
}

// Notifier turns jobs into messages for a Mailer.
type Notifier struct {
	mailer Mailer
	log    *zap.Logger
}

func NewNotifier(m Mailer, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{mailer: m, log: log.With(zap.String("component", "notifier"))}
}

func (n *Notifier) Handle(ctx context.Context, job Job) error {
	msg, err := render(job)
	if err != nil {
		return err
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", job.Kind, err)
	}
	n.log.Info("notification sent", zap.String("kind", job.Kind), zap.String("id", job.ID), zap.String("to", msg.To))
	return nil
}

func render(job Job) (Message, error) {
	switch job.Kind {
	case KindBookingConfirmed:
		var ev BookingConfirmed
		if err := json.Unmarshal(job.Payload, &ev); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", job.Kind, err)
		}
		return Message{
			To:      ev.UserEmail,
			Subject: fmt.Sprintf("Booking #%d confirmed", ev.BookingID),
			Body: fmt.Sprintf("%d ticket(s) for %s at %s (%s). Total %d.",
				ev.Tickets, ev.ShowName, ev.VenueName, ev.ShowTime, ev.TotalPrice),
		}, nil
	case KindReminder:
		var ev Reminder
		if err := json.Unmarshal(job.Payload, &ev); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", job.Kind, err)
		}
		return Message{
			To:      ev.Email,
			Subject: "New shows are waiting",
			Body:    fmt.Sprintf("Hi %s, you have not booked a show in a while. Take a look at what's on.", ev.Name),
		}, nil
	case KindReport:
		var ev Report
		if err := json.Unmarshal(job.Payload, &ev); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", job.Kind, err)
		}
		return Message{
			To:         ev.Email,
			Subject:    "Your booking activity",
			Body:       fmt.Sprintf("Hi %s, your activity report covers %d booking(s).", ev.Name, ev.Bookings),
			Attachment: ev.CSV,
		}, nil
	default:
		return Message{}, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}
