package otp

import (
	"strings"
	"testing"
	"time"

	libOTP "github.com/pquerna/otp"
)

func TestTOTPGenerate(t *testing.T) {
	o := NewTOTP("dashkeep", 30, 2, libOTP.DigitsSix)

	secret, uri, err := o.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if secret == "" {
		t.Fatalf("expected non-empty secret")
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning uri %q", uri)
	}
	if !strings.Contains(uri, secret) {
		t.Fatalf("provisioning uri does not carry the secret")
	}
	if !strings.Contains(uri, "issuer=dashkeep") {
		t.Fatalf("provisioning uri missing issuer")
	}
}

func TestTOTPValidateWindow(t *testing.T) {
	o := NewTOTP("dashkeep", 30, 2, libOTP.DigitsSix)

	secret, _, err := o.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	at := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)
	code, err := o.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}

	cases := []struct {
		name  string
		drift time.Duration
		want  bool
	}{
		{"Exact", 0, true},
		{"MinusTwoSteps", -60 * time.Second, true},
		{"PlusTwoSteps", 60 * time.Second, true},
		{"MinusThreeSteps", -90 * time.Second, false},
		{"PlusThreeSteps", 90 * time.Second, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := o.Validate(code, secret, at.Add(tc.drift)); got != tc.want {
				t.Fatalf("validate at drift %v = %v, want %v", tc.drift, got, tc.want)
			}
		})
	}
}

func TestTOTPValidateRejectsGarbage(t *testing.T) {
	o := NewTOTP("dashkeep", 0, 0, libOTP.DigitsSix)

	secret, _, err := o.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if o.Validate("000000", secret, time.Now()) && o.Validate("999999", secret, time.Now()) {
		t.Fatalf("validator accepts arbitrary codes")
	}
	if o.Validate("abcdef", secret, time.Now()) {
		t.Fatalf("validator accepts non-numeric code")
	}
}

func TestTOTPImage(t *testing.T) {
	o := NewTOTP("dashkeep", 30, 2, libOTP.DigitsSix)

	_, uri, err := o.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	dataURL, err := o.Image(uri, 0)
	if err != nil {
		t.Fatalf("image: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected data url prefix")
	}

	if _, err := o.Image("://not-a-uri", 128); err == nil {
		t.Fatalf("expected error for malformed uri")
	}
}
