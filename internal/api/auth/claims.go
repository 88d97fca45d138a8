package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims carried by a Quietwire session token. A token
// binds a user to the single device it was minted for; every authenticated
// request re-checks that the device row still exists, which is how a newer
// login remotely revokes older tokens without a blacklist.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the authenticated user's ID.
	UserID string `json:"uid"`

	// DeviceID is the client-generated device identifier the token was
	// minted for.
	DeviceID string `json:"did"`
}
