package model

// Venue is a place that hosts shows.  Capacity describes the venue itself
// and is not used to bound bookings; each Show carries its own capacity.
type Venue struct {
    ID       uint64 `json:"id"`
    Name     string `json:"name"`
    Place    string `json:"place"`
    Location string `json:"location"`
    Capacity int    `json:"capacity"`
}
