// Package domain contains core domain types for the AskHR application.
package domain

import (
	"time"
)

// DefaultExpiresIn is assumed when the token endpoint omits expires_in.
const DefaultExpiresIn = 3600

// CredentialRecord is the cached result of one interactive Workday authorization.
// It is replaced as a whole, never mutated after issue.
type CredentialRecord struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	IssuedAt     time.Time      `json:"issued_at"`
	ExpiresIn    int64          `json:"expires_in"`
	Debug        ProviderDebug  `json:"debug,omitempty"`
	WorkerID     string         `json:"worker_id,omitempty"`
	Profile      map[string]any `json:"profile,omitempty"`
}

// ProviderDebug records what the identity provider told us during the flow.
type ProviderDebug struct {
	AuthURL     string `json:"auth_url,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	Scope       string `json:"scope,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
}

// ExpiresAt returns the instant the provider stops honouring the token.
func (c *CredentialRecord) ExpiresAt() time.Time {
	return c.IssuedAt.Add(time.Duration(c.lifetime()) * time.Second)
}

// FreshAt reports whether the record can still be used at now, keeping margin
// in reserve so a token does not expire halfway through a tool call.
func (c *CredentialRecord) FreshAt(now time.Time, margin time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	age := now.Sub(c.IssuedAt)
	return age < time.Duration(c.lifetime())*time.Second-margin
}

func (c *CredentialRecord) lifetime() int64 {
	if c.ExpiresIn <= 0 {
		return DefaultExpiresIn
	}
	return c.ExpiresIn
}
