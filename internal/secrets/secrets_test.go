package secrets

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testBackend(t *testing.T) Backend {
	t.Helper()
	b, err := NewAESBackend("0123456789abcdef0123456789abcdef", slog.Default())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return b
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	doc := map[string]any{
		"hostPort": "db.internal:5432",
		"username": "reader",
		"password": "hunter2-cleartext",
	}

	encrypted, err := b.Encrypt(ctx, doc, "postgres", "prodDB")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if !IsEncrypted(encrypted) {
		t.Fatalf("expected encrypted form, got %v", encrypted)
	}

	decrypted, err := b.Decrypt(ctx, encrypted, "postgres", "prodDB")
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if diff := cmp.Diff(doc, decrypted); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCiphertextHidesCleartext(t *testing.T) {
	b := testBackend(t)
	doc := map[string]any{"password": "hunter2-cleartext"}

	encrypted, err := b.Encrypt(context.Background(), doc, "mysql", "svc")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	persisted, err := json.Marshal(encrypted)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(persisted), "hunter2-cleartext") {
		t.Error("persisted form contains the cleartext secret")
	}
}

func TestEncryptIsIdempotentOnEncryptedForm(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	once, err := b.Encrypt(ctx, map[string]any{"token": "abc"}, "api", "svc")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	twice, err := b.Encrypt(ctx, once, "api", "svc")
	if err != nil {
		t.Fatalf("second encrypt failed: %v", err)
	}
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("re-encrypting an encrypted document should be a no-op:\n%s", diff)
	}
}

func TestDecryptIsBoundToEntity(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	encrypted, err := b.Encrypt(ctx, map[string]any{"token": "abc"}, "api", "svcA")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := b.Decrypt(ctx, encrypted, "api", "svcB"); err == nil {
		t.Error("decrypting under a different entity name should fail")
	}
}

func TestShortKeyRejected(t *testing.T) {
	if _, err := NewAESBackend("too-short", slog.Default()); err == nil {
		t.Error("expected short key to be rejected")
	}
}
