package normalize

import "testing"

func TestEmail(t *testing.T) {
	t.Run("lowercases and trims", func(t *testing.T) {
		if got := Email("  User@Example.COM "); got != "user@example.com" {
			t.Errorf("expected user@example.com, got %q", got)
		}
	})

	t.Run("rejects malformed addresses", func(t *testing.T) {
		for _, bad := range []string{"notanemail", "a@b", "a b@c.com", "@x.com", ""} {
			if got := Email(bad); got != "" {
				t.Errorf("expected %q to be rejected, got %q", bad, got)
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		once := Email("User@Example.com")
		if twice := Email(once); twice != once {
			t.Errorf("normalization not idempotent: %q vs %q", once, twice)
		}
	})
}

func TestPhone(t *testing.T) {
	t.Run("strips formatting from mobile numbers", func(t *testing.T) {
		if got := Phone("(11) 99999-9999", false); got != "11999999999" {
			t.Errorf("expected 11999999999, got %q", got)
		}
	})

	t.Run("accepts 10 digit landlines", func(t *testing.T) {
		if got := Phone("11 3333-4444", false); got != "1133334444" {
			t.Errorf("expected 1133334444, got %q", got)
		}
	})

	t.Run("strips leading country code", func(t *testing.T) {
		if got := Phone("+55 11 99999-9999", false); got != "11999999999" {
			t.Errorf("expected 11999999999, got %q", got)
		}
	})

	t.Run("keeps a 10 digit number starting with 55", func(t *testing.T) {
		// 55 is also a valid area code; only strip when digits exceed 11.
		if got := Phone("55 3333-4444", false); got != "5533334444" {
			t.Errorf("expected 5533334444, got %q", got)
		}
	})

	t.Run("re-prepends country code on request", func(t *testing.T) {
		if got := Phone("(11) 99999-9999", true); got != "5511999999999" {
			t.Errorf("expected 5511999999999, got %q", got)
		}
	})

	t.Run("rejects wrong lengths", func(t *testing.T) {
		for _, bad := range []string{"123", "119999999999999", ""} {
			if got := Phone(bad, false); got != "" {
				t.Errorf("expected %q to be rejected, got %q", bad, got)
			}
		}
	})
}

func TestName(t *testing.T) {
	first, last := Name("  João  da Silva  ")
	if first != "joão" {
		t.Errorf("expected first joão, got %q", first)
	}
	if last != "da silva" {
		t.Errorf("expected last 'da silva', got %q", last)
	}

	first, last = Name("Madonna")
	if first != "madonna" || last != "" {
		t.Errorf("single token: got %q / %q", first, last)
	}
}

func TestState(t *testing.T) {
	cases := map[string]string{
		"São Paulo":      "sp",
		"sao paulo":      "sp",
		"Rio de Janeiro": "rj",
		"SP":             "sp",
		"Atlantis":       "",
	}
	for in, want := range cases {
		if got := State(in); got != want {
			t.Errorf("State(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestZip(t *testing.T) {
	if got := Zip("01310-100"); got != "01310100" {
		t.Errorf("expected 01310100, got %q", got)
	}
	if got := Zip("1310"); got != "" {
		t.Errorf("expected short zip rejected, got %q", got)
	}
}

func TestCountry(t *testing.T) {
	if got := Country(""); got != "br" {
		t.Errorf("expected default br, got %q", got)
	}
	if got := Country(" US "); got != "us" {
		t.Errorf("expected us, got %q", got)
	}
}

func TestHash(t *testing.T) {
	t.Run("produces 64 hex chars", func(t *testing.T) {
		digest := Hash("user@example.com")
		if !IsValidDigest(digest) {
			t.Errorf("digest %q does not match the sha256 hex shape", digest)
		}
	})

	t.Run("empty input stays empty", func(t *testing.T) {
		if got := Hash(""); got != "" {
			t.Errorf("expected empty digest, got %q", got)
		}
	})

	t.Run("normalize before hash is stable", func(t *testing.T) {
		a := Hash(Email("User@Example.com"))
		b := Hash(Email(Email("User@Example.com")))
		if a != b {
			t.Errorf("digests diverged: %q vs %q", a, b)
		}
	})
}

func TestHashFields(t *testing.T) {
	preHashed := Hash("already@hashed.com")
	fields := map[string]string{
		"em":          "user@example.com",
		"ph":          "",
		"external_id": preHashed,
	}

	hashed := HashFields(fields)

	if hashed["em"] != Hash("user@example.com") {
		t.Errorf("em not hashed: %q", hashed["em"])
	}
	if hashed["ph"] != "" {
		t.Errorf("empty value should stay empty, got %q", hashed["ph"])
	}
	if hashed["external_id"] != preHashed {
		t.Errorf("pre-hashed value should pass through, got %q", hashed["external_id"])
	}
}

func TestIsValidDigest(t *testing.T) {
	if IsValidDigest("abc") {
		t.Error("short string accepted as digest")
	}
	if IsValidDigest(Hash("x") + "0") {
		t.Error("65 chars accepted as digest")
	}
	upper := "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"
	if IsValidDigest(upper) {
		t.Error("uppercase hex accepted as digest")
	}
}
