package auth

import "time"

// Account is the persisted record of an identity that has signed in at
// least once. Roles are not stored here; they are read from the token on
// every session.
type Account struct {
	Subject   string
	Email     string
	Name      string
	FirstSeen time.Time
	LastSeen  time.Time
}
