package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		valid    bool
		wantErr  string
	}{
		{"canonical valid", "Aa1!Aa1!Aa1!", true, ""},
		{"too short", "Aa1!short", false, "at least 12 characters"},
		{"missing uppercase", "aa1!aa1!aa1!", false, "uppercase"},
		{"missing lowercase", "AA1!AA1!AA1!", false, "lowercase"},
		{"missing number", "Aa!!Aa!!Aa!!", false, "number"},
		{"missing special", "Aa1zAa1zAa1z", false, "special"},
		{"contains password", "MyPassword1!xy", false, "forbidden"},
		{"contains admin", "SuperAdmin1!xyz", false, "forbidden"},
		{"contains hospital", "Hospital1!abcd", false, "forbidden"},
		{"sequential digits", "Xk123456!abcd", false, "forbidden"},
		{"repeated characters", "Aaaaa1!bcdefg", false, "forbidden"},
		{"four identical runes", "Xyz9!wwwwMn2&", false, "forbidden"},
		{"three identical runes allowed", "Xyz9!wwwMn2&a", true, ""},
		{"empty", "", false, "at least 12 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidatePassword(tc.password)
			if res.IsValid != tc.valid {
				t.Fatalf("IsValid = %v, want %v (errors: %v)", res.IsValid, tc.valid, res.Errors)
			}
			if tc.wantErr == "" {
				return
			}
			found := false
			for _, e := range res.Errors {
				if strings.Contains(e, tc.wantErr) {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("expected an error containing %q, got %v", tc.wantErr, res.Errors)
			}
		})
	}
}

func TestPasswordStrength(t *testing.T) {
	cases := []struct {
		password string
		want     PasswordStrength
	}{
		{"abc", StrengthWeak},
		{"abcdefgh", StrengthWeak},
		{"Abcdefgh1", StrengthMedium},
		{"Tr0ub4dor&MagicXy", StrengthStrong},
	}
	for _, tc := range cases {
		if got := ValidatePassword(tc.password).Strength; got != tc.want {
			t.Errorf("strength(%q) = %s, want %s", tc.password, got, tc.want)
		}
	}
}

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(10)

	hash, err := h.Hash("Str0ng!Pass1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "Str0ng!Pass1234" {
		t.Fatal("hash equals plaintext")
	}
	if !h.Verify("Str0ng!Pass1234", hash) {
		t.Fatal("verify rejected the original password")
	}
	if h.Verify("Wr0ng!Pass1234", hash) {
		t.Fatal("verify accepted a different password")
	}
	if h.Verify("Str0ng!Pass1234", "") {
		t.Fatal("verify accepted an empty hash")
	}
}

func TestHasherSaltsEveryHash(t *testing.T) {
	h := NewHasher(10)
	a, err := h.Hash("Str0ng!Pass1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := h.Hash("Str0ng!Pass1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	if got := NewHasher(4).Cost; got != 10 {
		t.Errorf("cost below range clamps to 10, got %d", got)
	}
	if got := NewHasher(20).Cost; got != 15 {
		t.Errorf("cost above range clamps to 15, got %d", got)
	}
	if got := NewHasher(12).Cost; got != 12 {
		t.Errorf("in-range cost kept, got %d", got)
	}
}

func TestGeneratePasswordSatisfiesPolicy(t *testing.T) {
	for i := 0; i < 20; i++ {
		pw, err := GeneratePassword(16)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(pw) != 16 {
			t.Fatalf("length = %d, want 16", len(pw))
		}
		if res := ValidatePassword(pw); !res.IsValid {
			t.Fatalf("generated password %q fails policy: %v", pw, res.Errors)
		}
	}
}
