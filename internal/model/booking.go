package model

import "time"

// Booking records a user's purchase of a number of tickets for a show.
// The venue and show fields are a snapshot taken when the booking was
// committed, so later edits to the venue or show leave it unchanged.
type Booking struct {
    ID            uint64    `json:"booking_id"`
    UserID        uint64    `json:"user_id"`
    VenueID       uint64    `json:"venue_id"`
    ShowID        uint64    `json:"show_id"`
    VenueName     string    `json:"venue_name"`
    VenuePlace    string    `json:"venue_place"`
    VenueLocation string    `json:"venue_location"`
    ShowName      string    `json:"show_name"`
    ShowTime      string    `json:"show_time"`
    ShowTag       string    `json:"show_tag"`
    ShowRating    int       `json:"show_rating"`
    Tickets       int       `json:"tickets"`
    Price         int       `json:"price"`
    TotalPrice    int       `json:"total_price"`
    Rating        *int      `json:"user_rating"`
    CreatedAt     time.Time `json:"created"`
}

// Occupancy aggregates booked tickets for a show or a venue.
type Occupancy struct {
    ID       uint64 `json:"id"`
    Name     string `json:"name"`
    Capacity int    `json:"capacity"`
    Booked   int    `json:"booked"`
    Bookings int    `json:"bookings"`
}
