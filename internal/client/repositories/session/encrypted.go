package session

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

var _ Repository = (*EncryptedRepository)(nil)

// EncryptedRepository seals the session with AES-GCM and keeps it as a single
// metadata record.
type EncryptedRepository struct {
	meta metadata.Repository
	keys KeySource
	log  logging.Logger
}

func NewEncryptedRepository(meta metadata.Repository, keys KeySource, log logging.Logger) *EncryptedRepository {
	if log == nil {
		log = logging.Discard()
	}
	return &EncryptedRepository{meta: meta, keys: keys, log: log}
}

// Load returns the stored session. A record that cannot be opened with the
// current key is removed and reported as absent. When the key source itself
// fails (e.g. a wrong passphrase) the record is left alone.
func (r *EncryptedRepository) Load(ctx context.Context) (*models.Session, error) {
	sealed, err := r.meta.Get(ctx, RecordKey)
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		return nil, nil
	}

	key, err := r.keys.Key(ctx)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}

	var s models.Session
	if err := cryptox.Open(sealed, key, &s); err != nil {
		r.log.Warn(ctx, "discarding unreadable session record", "error", err)
		if derr := r.meta.Delete(ctx, RecordKey); derr != nil {
			return nil, derr
		}
		return nil, nil
	}

	return &s, nil
}

func (r *EncryptedRepository) Save(ctx context.Context, s *models.Session) error {
	if s == nil {
		return r.Delete(ctx)
	}

	key, err := r.keys.Key(ctx)
	if err != nil {
		return fmt.Errorf("session key: %w", err)
	}

	sealed, err := cryptox.Seal(s, key)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}

	return r.meta.Set(ctx, RecordKey, sealed)
}

// Delete removes the record. Key sources that can forget their key do so, so
// the next session is sealed with a fresh one.
func (r *EncryptedRepository) Delete(ctx context.Context) error {
	if err := r.meta.Delete(ctx, RecordKey); err != nil {
		return err
	}
	if f, ok := r.keys.(Forgetter); ok {
		if err := f.Forget(); err != nil {
			r.log.Warn(ctx, "failed to forget session key", "error", err)
		}
	}
	return nil
}
