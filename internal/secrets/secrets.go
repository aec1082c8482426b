// Package secrets provides pass-through encryption for sensitive
// sub-documents of an entity, keyed by a type discriminator and the entity
// name. Cleartext is held only transiently; it never reaches the document
// store or a change record.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/rpattn/metacat/internal/domain"
)

// ciphertextField marks the encrypted form of a sub-document.
const ciphertextField = "ciphertext"

// Backend encrypts and decrypts secret sub-documents. Delete removes any
// externally stored material for the given key pair.
type Backend interface {
	Encrypt(ctx context.Context, doc map[string]any, discriminator, name string) (map[string]any, error)
	Decrypt(ctx context.Context, doc map[string]any, discriminator, name string) (map[string]any, error)
	Delete(ctx context.Context, discriminator, name string) error
}

// IsEncrypted reports whether a sub-document is already in encrypted form.
func IsEncrypted(doc map[string]any) bool {
	_, ok := doc[ciphertextField].(string)
	return ok && len(doc) == 1
}

// aesBackend encrypts locally with AES-256-GCM. The (discriminator, name)
// pair is bound into the GCM additional data so a ciphertext cannot be
// replayed onto a different entity.
type aesBackend struct {
	aead cipher.AEAD
	log  *slog.Logger
}

// NewAESBackend derives an AES-256 key from the configured secret. The key
// material must be at least 32 characters.
func NewAESBackend(key string, log *slog.Logger) (Backend, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("secrets key must be at least 32 characters, got %d", len(key))
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &aesBackend{aead: aead, log: log}, nil
}

func (b *aesBackend) Encrypt(ctx context.Context, doc map[string]any, discriminator, name string) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	if IsEncrypted(doc) {
		return doc, nil
	}
	cleartext, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal secret document: %w", err)
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, domain.NewExternalDependency(err, "failed to draw nonce")
	}
	sealed := b.aead.Seal(nonce, nonce, cleartext, additionalData(discriminator, name))
	return map[string]any{
		ciphertextField: base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

func (b *aesBackend) Decrypt(ctx context.Context, doc map[string]any, discriminator, name string) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	encoded, ok := doc[ciphertextField].(string)
	if !ok {
		// Not encrypted; pass through unchanged.
		return doc, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(sealed) < b.aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, payload := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]
	cleartext, err := b.aead.Open(nil, nonce, payload, additionalData(discriminator, name))
	if err != nil {
		return nil, domain.NewExternalDependency(err, "failed to decrypt secret for %s/%s", discriminator, name)
	}
	var out map[string]any
	if err := json.Unmarshal(cleartext, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret document: %w", err)
	}
	return out, nil
}

func (b *aesBackend) Delete(ctx context.Context, discriminator, name string) error {
	// Local encryption stores nothing outside the entity document; there is
	// no external material to remove.
	b.log.Debug("no external secret material to delete", "discriminator", discriminator, "name", name)
	return nil
}

func additionalData(discriminator, name string) []byte {
	return []byte(discriminator + "\x00" + name)
}
