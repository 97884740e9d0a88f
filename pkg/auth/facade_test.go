package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generate hash: %v", err)
	}
	return string(hashed)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	store := StaticCredentialStore{"alice": hashPassword(t, "correct-horse")}
	facade := New(store)

	if _, err := facade.Authenticate("alice", "wrong-password"); err == nil {
		t.Fatal("expected an error for a wrong password")
	}
	if _, err := facade.Authenticate("bob", "anything"); err == nil {
		t.Fatal("expected an error for an unknown username")
	}
}

func TestAuthenticateReturnsSameTokenWhileLive(t *testing.T) {
	store := StaticCredentialStore{"alice": hashPassword(t, "correct-horse")}
	facade := New(store)

	first, err := facade.Authenticate("alice", "correct-horse")
	if err != nil {
		t.Fatalf("first Authenticate: %v", err)
	}
	second, err := facade.Authenticate("alice", "correct-horse")
	if err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same token while the first is still live, got %q and %q", first, second)
	}
}

func TestVerifyTokenFailsAfterRevoke(t *testing.T) {
	store := StaticCredentialStore{"alice": hashPassword(t, "correct-horse")}
	facade := New(store)

	token, err := facade.Authenticate("alice", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := facade.VerifyToken(token); err != nil {
		t.Fatalf("VerifyToken before revoke: %v", err)
	}

	facade.Revoke(token)

	if _, err := facade.VerifyToken(token); err != ErrInvalidToken {
		t.Fatalf("VerifyToken after revoke = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyTokenRejectsUnknownAndEmpty(t *testing.T) {
	facade := New(StaticCredentialStore{})

	if _, err := facade.VerifyToken(""); err != ErrInvalidToken {
		t.Fatalf("VerifyToken(\"\") = %v, want ErrInvalidToken", err)
	}
	if _, err := facade.VerifyToken("never-issued"); err != ErrInvalidToken {
		t.Fatalf("VerifyToken(unknown) = %v, want ErrInvalidToken", err)
	}
}
