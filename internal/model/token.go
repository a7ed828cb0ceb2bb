package model

import "time"

// AuthorizationToken is the access/refresh pair persisted in the secret store.
// A new value replaces the old one on every login or refresh.
type AuthorizationToken struct {
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	ExpiryTimestamp int64  `json:"expiryTimestamp"`
}

// ExpiresAt returns the expiry as a time.Time.
func (t AuthorizationToken) ExpiresAt() time.Time {
	return time.Unix(t.ExpiryTimestamp, 0)
}

// Remaining returns the whole seconds left before expiry, measured against now.
func (t AuthorizationToken) Remaining(now time.Time) time.Duration {
	return time.Duration(t.ExpiryTimestamp-now.Unix()) * time.Second
}
