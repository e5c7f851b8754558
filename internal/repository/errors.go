// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrConflict signals that an operation cannot proceed due to
// existing dependent records (e.g. deleting a show that still has
// bookings), and the *NotFound values map to 404 responses.
package repository

import "errors"

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state, such as attempting to
// delete a show that still has bookings or lowering a show's capacity
// below the tickets already sold. Handlers should translate this into
// an HTTP 409 response.
var ErrConflict = errors.New("conflict")

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrVenueNotFound   = errors.New("venue not found")
	ErrShowNotFound    = errors.New("show not found")
	ErrBookingNotFound = errors.New("booking not found")
)

// ErrEmailExists is returned by UserRepository.Create when the email is
// already registered.
var ErrEmailExists = errors.New("email already exists")
