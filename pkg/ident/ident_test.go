package ident

import "testing"

func TestEncode(t *testing.T) {
	tests := map[uint32]string{
		0:          "T00000",
		1:          "T00001",
		35:         "T0000Z",
		36:         "T00010",
		60466175:   "TZZZZZ",
		60466176:   "T100000",
		0xFFFFFFFF: "T1Z141Z3",
	}
	for id, want := range tests {
		if got := Encode(id); got != want {
			t.Errorf("Encode(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := map[string]uint32{
		"T00001":   1,
		"t00001":   0,
		"00001":    0,
		"":         0,
		"T":        0,
		"T0000z":   35,
		"T12-34":   38,
		"T1Z141Z3": 0xFFFFFFFF,
	}
	for label, want := range tests {
		if got := Decode(label); got != want {
			t.Errorf("Decode(%q) = %d, want %d", label, got, want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, id := range []uint32{1, 2, 100, 4242, 123456, 0x7FFFFFFF, 0xFFFFFFFF} {
		if got := Decode(Encode(id)); got != id {
			t.Fatalf("round trip of %d returned %d", id, got)
		}
	}
}

func TestEncodeReturnsOwnedString(t *testing.T) {
	a := Encode(1)
	b := Encode(2)
	if a != "T00001" || b != "T00002" {
		t.Fatalf("encodings alias each other: %q %q", a, b)
	}
}
