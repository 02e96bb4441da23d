package money

import (
	"math/big"
	"testing"

	"microloan/go-client/internal/fault"
)

func TestParseAmountExact(t *testing.T) {
	cases := []struct {
		in   string
		want string // wei
	}{
		{"1", "1000000000000000000"},
		{"0.1", "100000000000000000"},
		{"2.5", "2500000000000000000"},
		{"0.000000000000000001", "1"},
		{"300.25", "300250000000000000000"},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseAmountRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "0", "0.0000000000000000001", "1,5"} {
		_, err := ParseAmount(in)
		if err == nil {
			t.Fatalf("ParseAmount(%q) must fail", in)
		}
		if !fault.Is(err, fault.CodeValidation) {
			t.Fatalf("ParseAmount(%q) must fail with a validation fault, got %v", in, err)
		}
	}
}

func TestFormatWeiRoundTrip(t *testing.T) {
	for _, in := range []string{"1", "0.1", "2.5", "0.000000000000000001", "123456.789"} {
		wei, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", in, err)
		}
		if got := FormatWei(wei); got != in {
			t.Fatalf("round trip of %q produced %q", in, got)
		}
	}
}

func TestFormatWeiNil(t *testing.T) {
	if got := FormatWei(nil); got != "0" {
		t.Fatalf("FormatWei(nil) = %q", got)
	}
}

func TestWholeEther(t *testing.T) {
	if got := WholeEther(3); got.Cmp(new(big.Int).SetUint64(3e18)) != 0 {
		t.Fatalf("WholeEther(3) = %s", got)
	}
}
