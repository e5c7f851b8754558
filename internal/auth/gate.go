package auth

import (
	"errors"
	"fmt"

	"github.com/iliyamo/showbook/internal/model"
)

// RoleAny accepts any verified token.
const RoleAny = "any"

var ErrForbidden = errors.New("auth: forbidden")

// ForbiddenError reports the role a caller lacked.
type ForbiddenError struct {
	Required string
}

func (e *ForbiddenError) Error() string { return fmt.Sprintf("requires %s", e.Required) }

// Is lets errors.Is(err, ErrForbidden) match.
func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// Authorize decides whether verified claims satisfy the required role.
func Authorize(claims *Claims, required string) error {
	if claims == nil {
		return ErrUnknownIdentity
	}
	if required == RoleAny || claims.Role == required {
		return nil
	}
	return &ForbiddenError{Required: required}
}

// ValidRole reports whether role names an account role.
func ValidRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleUser
}
