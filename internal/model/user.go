package model

import "time"

// Role names carried in users.role and in the session token.
const (
    RoleAdmin = "admin"
    RoleUser  = "user"
)

// User represents an application user record as stored in the `users`
// table.  PasswordHash is never serialized; handlers expose users through
// their own response types.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address (the token identity).
//  PasswordHash – bcrypt hashed password.
//  Name         – display name.
//  Role         – admin or user.
//  CreatedAt    – registration time.
//  LastLogin    – time of the last successful login.
//  LastBooked   – time of the last committed booking (nil if none).
type User struct {
    ID           uint64     `json:"id"`
    Email        string     `json:"email"`
    PasswordHash string     `json:"-"`
    Name         string     `json:"username"`
    Role         string     `json:"role"`
    CreatedAt    time.Time  `json:"created"`
    LastLogin    time.Time  `json:"lastlogin"`
    LastBooked   *time.Time `json:"lastbooked,omitempty"`
}
