package security_test

import (
	"testing"
	"time"

	"github.com/plombea/plombea-backend/pkg/security"
)

func TestTOTPRoundTrip(t *testing.T) {
	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("GenerateTOTPSecret returned error: %v", err)
	}

	now := time.Unix(1700000000, 0)
	code, err := security.TOTPCode(secret, now)
	if err != nil {
		t.Fatalf("TOTPCode returned error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	ok, err := security.VerifyTOTP(secret, code, now)
	if err != nil {
		t.Fatalf("VerifyTOTP returned error: %v", err)
	}
	if !ok {
		t.Fatal("VerifyTOTP rejected a freshly generated code")
	}
}

func TestVerifyTOTPAllowsOnePeriodOfDrift(t *testing.T) {
	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("GenerateTOTPSecret returned error: %v", err)
	}

	now := time.Unix(1700000000, 0)
	previous, err := security.TOTPCode(secret, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("TOTPCode returned error: %v", err)
	}

	ok, err := security.VerifyTOTP(secret, previous, now)
	if err != nil {
		t.Fatalf("VerifyTOTP returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected previous-period code to verify")
	}
}

func TestVerifyTOTPRejectsWrongCode(t *testing.T) {
	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("GenerateTOTPSecret returned error: %v", err)
	}

	ok, err := security.VerifyTOTP(secret, "000000", time.Unix(42, 0))
	if err != nil {
		t.Fatalf("VerifyTOTP returned error: %v", err)
	}
	if ok {
		t.Fatal("expected bogus code to be rejected")
	}
}
