package digest_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/fedegimenez/inmate-state-ledger/internal/digest"
)

func TestOfString_knownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"abc", "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"},
	}
	for _, tc := range cases {
		if got := digest.OfString(tc.in).String(); got != tc.want {
			t.Errorf("OfString(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestOfString_deterministic(t *testing.T) {
	a := digest.OfString("interno-1")
	b := digest.OfString("interno-1")
	if a != b {
		t.Fatalf("digest not deterministic: %s != %s", a, b)
	}
	if a == digest.OfString("interno-2") {
		t.Fatal("distinct inputs produced the same digest")
	}
}

func TestParse_roundTrip(t *testing.T) {
	d := digest.OfString("evidencia")

	withPrefix, err := digest.Parse(d.String())
	if err != nil {
		t.Fatalf("Parse(%s): %v", d, err)
	}
	if withPrefix != d {
		t.Errorf("Parse with prefix: got %s, want %s", withPrefix, d)
	}

	noPrefix, err := digest.Parse(d.String()[2:])
	if err != nil {
		t.Fatalf("Parse without prefix: %v", err)
	}
	if noPrefix != d {
		t.Errorf("Parse without prefix: got %s, want %s", noPrefix, d)
	}
}

func TestParse_invalid(t *testing.T) {
	for _, in := range []string{"", "0x1234", "zz" + digest.Zero.String()[4:]} {
		if _, err := digest.Parse(in); !errors.Is(err, digest.ErrInvalid) {
			t.Errorf("Parse(%q): expected ErrInvalid, got %v", in, err)
		}
	}
}

func TestDigest_JSON(t *testing.T) {
	d := digest.OfString("x")
	b, err := json.Marshal(struct {
		D digest.Digest `json:"d"`
	}{d})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"d":"` + d.String() + `"}`
	if string(b) != want {
		t.Errorf("json: got %s, want %s", b, want)
	}
}

func TestDigest_Scan(t *testing.T) {
	d := digest.OfString("scan")
	v, err := d.Value()
	if err != nil {
		t.Fatal(err)
	}

	var got digest.Digest
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got != d {
		t.Errorf("Scan: got %s, want %s", got, d)
	}

	if err := got.Scan([]byte{1, 2, 3}); err == nil {
		t.Error("expected error scanning short blob")
	}
}

func TestZero(t *testing.T) {
	if !digest.Zero.IsZero() {
		t.Error("Zero.IsZero() should be true")
	}
	if digest.OfString("").IsZero() {
		t.Error("digest of empty string is not the zero digest")
	}
}
