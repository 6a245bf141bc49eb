// Package session persists the current auth session in the local database,
// encrypted at rest. It is used only by the identity backend client.
package session

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
)

const (
	// RecordKey is the metadata key holding the sealed session.
	RecordKey = "auth.session"
	// SaltKey is the metadata key holding the passphrase salt.
	SaltKey = "auth.session.salt"
	// KeyCheckKey holds a value sealed with the passphrase-derived key, so a
	// wrong passphrase is detected before any record is touched.
	KeyCheckKey = "auth.session.keycheck"
)

// Repository stores at most one session.
//
// Load returns (nil, nil) when nothing is stored.
type Repository interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context) error
}

// KeySource supplies the symmetric key the record is sealed with.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// Forgetter is implemented by key sources whose key can be discarded once no
// record depends on it.
type Forgetter interface {
	Forget() error
}
