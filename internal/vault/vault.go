// Package vault persists provider credentials in a local SQLite
// database, encrypted at rest with AES-256-GCM. The auth store writes
// through to it so tokens survive restarts.
package vault

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/switchboard-dev/switchboard/internal/auth"
	"github.com/switchboard-dev/switchboard/internal/types"
)

// ErrClosed is returned for operations on a closed vault.
var ErrClosed = errors.New("vault is closed")

// Vault is the encrypted credential store.
type Vault struct {
	db  *sql.DB
	enc *aesEncryptor

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if needed) the vault database at path.
func Open(path string) (*Vault, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	enc, err := newEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	v := &Vault{db: db, enc: enc}
	if err := v.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vault schema: %w", err)
	}
	return v, nil
}

func (v *Vault) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		id            TEXT PRIMARY KEY,
		provider      TEXT NOT NULL UNIQUE,
		token         TEXT NOT NULL,
		token_type    TEXT NOT NULL DEFAULT 'bearer',
		refresh_token TEXT NOT NULL DEFAULT '',
		expires_at    INTEGER NOT NULL DEFAULT 0,
		updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := v.db.Exec(schema)
	return err
}

// SaveCredential upserts one provider's credential, encrypting the
// secret fields. Implements auth.Persister.
func (v *Vault) SaveCredential(p types.Provider, c auth.Credential) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}

	token, err := v.enc.encrypt(c.Token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	refresh := ""
	if c.RefreshToken != "" {
		if refresh, err = v.enc.encrypt(c.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	var expires int64
	if !c.ExpiresAt.IsZero() {
		expires = c.ExpiresAt.Unix()
	}

	_, err = v.db.Exec(`
		INSERT INTO credentials (id, provider, token, token_type, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider) DO UPDATE SET
			token = excluded.token,
			token_type = excluded.token_type,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		uuid.NewString(), p.String(), token, c.TokenType, refresh, expires)
	return err
}

// LoadAll decrypts and returns every stored credential keyed by provider.
// Rows for providers this build does not know are skipped.
func (v *Vault) LoadAll() (map[types.Provider]auth.Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrClosed
	}

	rows, err := v.db.Query(`SELECT provider, token, token_type, refresh_token, expires_at FROM credentials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.Provider]auth.Credential)
	for rows.Next() {
		var (
			provider, token, tokenType, refresh string
			expires                             int64
		)
		if err := rows.Scan(&provider, &token, &tokenType, &refresh, &expires); err != nil {
			return nil, err
		}

		p, err := types.ParseProvider(provider)
		if err != nil {
			continue
		}

		cred := auth.Credential{TokenType: tokenType}
		if cred.Token, err = v.enc.decrypt(token); err != nil {
			return nil, fmt.Errorf("decrypt token for %s: %w", provider, err)
		}
		if refresh != "" {
			if cred.RefreshToken, err = v.enc.decrypt(refresh); err != nil {
				return nil, fmt.Errorf("decrypt refresh token for %s: %w", provider, err)
			}
		}
		if expires > 0 {
			cred.ExpiresAt = time.Unix(expires, 0)
		}
		out[p] = cred
	}
	return out, rows.Err()
}

// DeleteCredential removes one provider's credential.
func (v *Vault) DeleteCredential(p types.Provider) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}

	_, err := v.db.Exec(`DELETE FROM credentials WHERE provider = ?`, p.String())
	return err
}

// Close releases the database. Safe to call more than once.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.db.Close()
}
