package txid

import (
	"regexp"
	"testing"
)

var format = regexp.MustCompile(`^tx[0-9a-f]{24}-[0-9a-f]{8}$`)
var formatWithSuffix = regexp.MustCompile(`^tx[0-9a-f]{24}-[0-9a-f]{8}-mysuffix$`)

func TestGenerateNoSuffixFormat(t *testing.T) {
	id, err := Generate("")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !format.MatchString(id) {
		t.Errorf("Generate() = %q, does not match expected format", id)
	}
}

func TestGenerateWithSuffixFormat(t *testing.T) {
	id, err := Generate("mysuffix")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !formatWithSuffix.MatchString(id) {
		t.Errorf("Generate() = %q, does not match expected suffixed format", id)
	}
}

func TestGenerateIsUnique(t *testing.T) {
	a, _ := Generate("")
	b, _ := Generate("")
	if a == b {
		t.Error("expected two distinct generated ids")
	}
}
