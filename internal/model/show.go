package model

// Show is a scheduled event at a venue.  Tickets is the capacity that
// bounds the sum of tickets over all bookings referencing the show, and
// Price is the unit price charged at booking time.
type Show struct {
    ID      uint64 `json:"id"`
    VenueID uint64 `json:"venue_id"`
    Name    string `json:"name"`
    Time    string `json:"time"`
    Tag     string `json:"tag"`
    Rating  int    `json:"rating"`
    Tickets int    `json:"tickets"`
    Price   int    `json:"price"`
}
