package hash

import "testing"

func TestBcryptHashVerify(t *testing.T) {
	h := NewBcrypt(4, "") // minimal cost keeps the test fast

	hashed, err := h.Hash("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	t.Run("Format", func(t *testing.T) {
		if !IsBcrypt(string(hashed)) {
			t.Fatalf("hash output not recognized as bcrypt: %q", hashed)
		}
	})

	t.Run("Match", func(t *testing.T) {
		if !h.Verify(string(hashed), "hunter2") {
			t.Fatalf("correct password rejected")
		}
	})

	t.Run("Mismatch", func(t *testing.T) {
		if h.Verify(string(hashed), "hunter3") {
			t.Fatalf("wrong password accepted")
		}
	})

	t.Run("Pepper", func(t *testing.T) {
		peppered := NewBcrypt(4, "pepper")
		ph, err := peppered.Hash("hunter2")
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if h.Verify(string(ph), "hunter2") {
			t.Fatalf("pepperless verifier accepted peppered hash")
		}
		if !peppered.Verify(string(ph), "hunter2") {
			t.Fatalf("peppered verifier rejected its own hash")
		}
	})
}

func TestIsBcrypt(t *testing.T) {
	cases := []struct {
		name   string
		stored string
		want   bool
	}{
		{"LegacyRaw", "hunter2", false},
		{"Empty", "", false},
		{"PrefixOnlyTooShort", "$2b$10$tooshort", false},
		{"WrongPrefixRightLength", "$3b$10$" + string(make([]byte, 53)), false},
		{"RealHash", "$2b$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBcrypt(tc.stored); got != tc.want {
				t.Fatalf("IsBcrypt(%q) = %v, want %v", tc.stored, got, tc.want)
			}
		})
	}
}
