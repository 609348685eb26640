// internal/pkg/session/types.go
package session

import (
	"context"
	"time"
)

// Revocation marks one operator token (by jti) as no longer usable.
// It only needs to outlive the token itself.
type Revocation struct {
	JTI       string    `json:"jti"`
	Subject   string    `json:"subject,omitempty"`
	RevokedBy string    `json:"revoked_by"`
	Reason    string    `json:"reason,omitempty"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store interface {
	Put(ctx context.Context, r *Revocation) error
	Get(ctx context.Context, jti string) (*Revocation, error)
}
