package validation

import "testing"

func TestIsValidAddress(t *testing.T) {
	valid := []string{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"0xABCDEF0123456789abcdef0123456789ABCDEF01",
		ZeroAddress,
	}
	for _, a := range valid {
		if !IsValidAddress(a) {
			t.Errorf("IsValidAddress(%q) = false, want true", a)
		}
	}

	invalid := []string{
		"",
		"0x123",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",   // missing prefix
		"0xgggggggggggggggggggggggggggggggggggggggg", // non-hex
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	for _, a := range invalid {
		if IsValidAddress(a) {
			t.Errorf("IsValidAddress(%q) = true, want false", a)
		}
	}
}

func TestSanitizeAddress(t *testing.T) {
	if got := SanitizeAddress("  0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA "); got != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("SanitizeAddress lowercase/trim failed: %q", got)
	}
	if got := SanitizeAddress("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"); got != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("SanitizeAddress prefix failed: %q", got)
	}
}

func TestValidAmount(t *testing.T) {
	cases := map[string]bool{
		"1.50":  true,
		"0.001": true,
		"":      true, // optional; Required handles empty
		"0":     false,
		"0.000": false,
		"1.2.3": false,
		"-1":    false,
		".5":    false,
		"5.":    false,
	}
	for input, wantOK := range cases {
		err := ValidAmount("amount", input)()
		if (err == nil) != wantOK {
			t.Errorf("ValidAmount(%q) err = %v, want ok=%v", input, err, wantOK)
		}
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	errs := Validate(
		Required("name", ""),
		ValidAddress("wallet", "0x123"),
		ValidAmount("amount", "1.00"),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs.Error() == "" {
		t.Error("Error() should describe first failure")
	}
}
