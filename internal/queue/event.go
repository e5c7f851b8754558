// Package queue defines the jobs exchanged over the message broker and the
// publisher and consumer that move them.
package queue

import (
    "encoding/json"
    "fmt"
    "time"

    "github.com/google/uuid"
)

// Job kinds double as queue names.
const (
    KindBookingConfirmed = "booking.confirmed"
    KindReminder         = "notify.reminder"
    KindReport           = "notify.report"
)

// Kinds lists every queue the publisher declares and the consumer reads.
var Kinds = []string{KindBookingConfirmed, KindReminder, KindReport}

// Job is the envelope written to the broker.  Payload holds one of the
// event structs below, selected by Kind.
type Job struct {
    ID        string          `json:"id"`
    Kind      string          `json:"kind"`
    CreatedAt time.Time       `json:"created_at"`
    Payload   json.RawMessage `json:"payload"`
}

// NewJob wraps payload in an envelope with a fresh id.
func NewJob(kind string, payload interface{}, at time.Time) (Job, error) {
    body, err := json.Marshal(payload)
    if err != nil {
        return Job{}, fmt.Errorf("marshal %s payload: %w", kind, err)
    }
    return Job{ID: uuid.NewString(), Kind: kind, CreatedAt: at.UTC(), Payload: body}, nil
}

// BookingConfirmed is published after a booking commits.  It carries
// enough for a receipt without reading the database.
type BookingConfirmed struct {
    BookingID   uint64    `json:"booking_id"`
    UserID      uint64    `json:"user_id"`
    UserEmail   string    `json:"user_email"`
    ShowID      uint64    `json:"show_id"`
    VenueID     uint64    `json:"venue_id"`
    VenueName   string    `json:"venue_name"`
    ShowName    string    `json:"show_name"`
    ShowTime    string    `json:"show_time"`
    Tickets     int       `json:"tickets"`
    TotalPrice  int       `json:"total_price"`
    Remaining   int       `json:"remaining"`
    ConfirmedAt time.Time `json:"confirmed_at"`
}

// Reminder nudges a user who has not booked recently.
type Reminder struct {
    UserID     uint64     `json:"user_id"`
    Email      string     `json:"email"`
    Name       string     `json:"username"`
    LastBooked *time.Time `json:"last_booked,omitempty"`
}

// Report delivers a user's booking history as CSV.
type Report struct {
    UserID   uint64 `json:"user_id"`
    Email    string `json:"email"`
    Name     string `json:"username"`
    Bookings int    `json:"bookings"`
    CSV      string `json:"csv"`
}
