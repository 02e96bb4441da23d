package models

import "testing"

func TestShortAddress(t *testing.T) {
	addr := "0x5eFd57C010b974F05CBEB2c69703c97A4Fb45F28"
	if got := ShortAddress(addr); got != "0x5eFd…5F28" {
		t.Fatalf("unexpected short form: %q", got)
	}
	if got := ShortAddress("0x1234"); got != "0x1234" {
		t.Fatalf("short inputs must pass through, got %q", got)
	}
}
