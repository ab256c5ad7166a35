package secrets_test

import (
	"strings"
	"testing"

	"opsdeck/internal/secrets"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := secrets.NewBox("unit-test-key")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	sealed, err := box.Encrypt("s3cret-api-key")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if sealed == "s3cret-api-key" || !strings.HasPrefix(sealed, "enc:") {
		t.Fatalf("expected sealed value, got %q", sealed)
	}
	if got := box.Decrypt(sealed); got != "s3cret-api-key" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestDecryptLegacyPlaintextPassesThrough(t *testing.T) {
	box, _ := secrets.NewBox("unit-test-key")
	if got := box.Decrypt("plain-old-password"); got != "plain-old-password" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestDecryptWithWrongKeyYieldsEmpty(t *testing.T) {
	box1, _ := secrets.NewBox("key-one")
	box2, _ := secrets.NewBox("key-two")
	sealed, err := box1.Encrypt("value")
	if err != nil {
		t.Fatal(err)
	}
	if got := box2.Decrypt(sealed); got != "" {
		t.Fatalf("expected empty on bad key, got %q", got)
	}
}

func TestDecryptCorruptValueYieldsEmpty(t *testing.T) {
	box, _ := secrets.NewBox("unit-test-key")
	if got := box.Decrypt("enc:not-base64!!"); got != "" {
		t.Fatalf("expected empty on corrupt value, got %q", got)
	}
	if got := box.Decrypt("enc:AAAA"); got != "" {
		t.Fatalf("expected empty on truncated value, got %q", got)
	}
}

func TestEmptyValueStaysEmpty(t *testing.T) {
	box, _ := secrets.NewBox("unit-test-key")
	sealed, err := box.Encrypt("")
	if err != nil || sealed != "" {
		t.Fatalf("expected empty passthrough, got %q err %v", sealed, err)
	}
}
