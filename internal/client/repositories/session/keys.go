package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/zalando/go-keyring"
)

const (
	KeyringService = "gophauth"
	keyringUser    = "session-key"
	saltSize       = 16
)

const keyCheckValue = "gophauth-session-key"

var (
	ErrEmptyPassphrase = errors.New("empty store passphrase")
	ErrWrongPassphrase = errors.New("store passphrase does not match this database")
)

// KeyringKeySource keeps a random key in the OS keychain, creating it on
// first use.
type KeyringKeySource struct {
	Service string
	User    string
}

func NewKeyringKeySource() *KeyringKeySource {
	return &KeyringKeySource{Service: KeyringService, User: keyringUser}
}

func (k *KeyringKeySource) Key(_ context.Context) ([]byte, error) {
	encoded, err := keyring.Get(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		key := common.GenerateRandByteArray(cryptox.KeySize)
		if err := keyring.Set(k.Service, k.User, base64.StdEncoding.EncodeToString(key)); err != nil {
			return nil, fmt.Errorf("failed to save key: %w", err)
		}
		return key, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != cryptox.KeySize {
		return nil, fmt.Errorf("malformed key in keychain %s/%s", k.Service, k.User)
	}
	return key, nil
}

// Forget removes the key from the keychain. Missing keys are not an error.
func (k *KeyringKeySource) Forget() error {
	if err := keyring.Delete(k.Service, k.User); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// PassphraseKeySource derives the key from a passphrase with argon2id. The
// salt is generated once per database and stored next to the record.
type PassphraseKeySource struct {
	db         dbx.TxBeginner
	passphrase []byte

	mu  sync.Mutex
	key []byte
}

func NewPassphraseKeySource(db dbx.TxBeginner, passphrase string) *PassphraseKeySource {
	return &PassphraseKeySource{db: db, passphrase: []byte(passphrase)}
}

func (p *PassphraseKeySource) Key(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}
	if len(p.passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	var key []byte
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if _, err := repo.SetIfAbsent(ctx, SaltKey, common.GenerateRandByteArray(saltSize)); err != nil {
			return err
		}
		salt, err := repo.Get(ctx, SaltKey)
		if err != nil {
			return err
		}
		key = cryptox.DeriveKey(p.passphrase, salt)
		return checkKey(ctx, repo, key)
	})
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	p.key = key
	common.WipeByteArray(p.passphrase)
	p.passphrase = nil
	return p.key, nil
}

// checkKey seals a known value with the first key derived for a database and
// rejects any later key that cannot open it.
func checkKey(ctx context.Context, repo metadata.Repository, key []byte) error {
	sealed, err := repo.Get(ctx, KeyCheckKey)
	if err != nil {
		return err
	}
	if sealed == nil {
		sealed, err = cryptox.Seal(keyCheckValue, key)
		if err != nil {
			return err
		}
		return repo.Set(ctx, KeyCheckKey, sealed)
	}

	var v string
	if err := cryptox.Open(sealed, key, &v); err != nil || v != keyCheckValue {
		return ErrWrongPassphrase
	}
	return nil
}
