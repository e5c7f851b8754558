// Package report renders booking data as CSV.
package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/showbook/internal/model"
)

var bookingHeader = []string{
	"booking_id", "created", "venue", "place", "location", "show", "time", "tag",
	"tickets", "price", "total_price", "user_rating",
}

// WriteBookings writes one row per booking.
func WriteBookings(w io.Writer, bookings []model.Booking) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(bookingHeader); err != nil {
		return err
	}
	for _, b := range bookings {
		rating := ""
		if b.Rating != nil {
			rating = strconv.Itoa(*b.Rating)
		}
		row := []string{
			u64(b.ID), b.CreatedAt.UTC().Format(time.RFC3339), b.VenueName, b.VenuePlace, b.VenueLocation,
			b.ShowName, b.ShowTime, b.ShowTag,
			strconv.Itoa(b.Tickets), strconv.Itoa(b.Price), strconv.Itoa(b.TotalPrice), rating,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BookingsCSV is WriteBookings into a string.
func BookingsCSV(bookings []model.Booking) (string, error) {
	var sb strings.Builder
	if err := WriteBookings(&sb, bookings); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WriteOccupancy writes one row per show or venue aggregate.
func WriteOccupancy(w io.Writer, rows []model.Occupancy) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "capacity", "booked", "bookings"}); err != nil {
		return err
	}
	for _, o := range rows {
		if err := cw.Write([]string{
			u64(o.ID), o.Name, strconv.Itoa(o.Capacity), strconv.Itoa(o.Booked), strconv.Itoa(o.Bookings),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func u64(n uint64) string { return strconv.FormatUint(n, 10) }
