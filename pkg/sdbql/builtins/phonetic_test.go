package builtins

import "testing"

func TestSoundex(t *testing.T) {
	cases := map[string]string{
		"Robert": "R163",
		"Rupert": "R163",
	}
	for in, want := range cases {
		if got := Soundex(in); got != want {
			t.Errorf("Soundex(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMetaphoneStable(t *testing.T) {
	if Metaphone("Thompson") == "" {
		t.Fatal("expected non-empty metaphone code")
	}
	if Metaphone("Night") != Metaphone("Nite") {
		t.Errorf("expected Night and Nite to share a metaphone code, got %q vs %q",
			Metaphone("Night"), Metaphone("Nite"))
	}
}

func TestCologneKnownValue(t *testing.T) {
	if got := Cologne("Müller"); got != "657" {
		t.Fatalf("expected cologne code 657 for Müller, got %q", got)
	}
}

func TestCaverphoneLength(t *testing.T) {
	if got := Caverphone("Thompson"); len(got) != 6 {
		t.Errorf("Caverphone code must be 6 characters, got %q (%d)", got, len(got))
	}
}

func TestNYSIISStable(t *testing.T) {
	if NYSIIS("Robert") == "" {
		t.Fatal("expected non-empty NYSIIS code")
	}
}
