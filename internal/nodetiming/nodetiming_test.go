package nodetiming

import (
	"testing"
	"time"
)

func TestLookupMissingReturnsNotOK(t *testing.T) {
	table := NewTable(300 * time.Second)
	if _, ok := table.Lookup("10.0.0.1"); ok {
		t.Fatal("expected no entry for unrecorded IP")
	}
}

func TestRecordThenLookupRoundTrips(t *testing.T) {
	table := NewTable(300 * time.Second)
	table.Record("10.0.0.1", 125*time.Millisecond)

	got, ok := table.Lookup("10.0.0.1")
	if !ok {
		t.Fatal("expected an entry after Record")
	}
	if got != 0.125 {
		t.Fatalf("got %v, want 0.125", got)
	}
}

func TestEntryExpires(t *testing.T) {
	table := NewTable(10 * time.Millisecond)
	table.Record("10.0.0.1", 50*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if _, ok := table.Lookup("10.0.0.1"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestKeyedByIPOnlyCollapsesDevices(t *testing.T) {
	// Two distinct devices on the same host share one timing bucket,
	// per the preserved (documented, not "fixed") behavior.
	table := NewTable(300 * time.Second)
	table.Record("10.0.0.1", 10*time.Millisecond)
	table.Record("10.0.0.1", 900*time.Millisecond)

	got, ok := table.Lookup("10.0.0.1")
	if !ok {
		t.Fatal("expected an entry")
	}
	if got != 0.9 {
		t.Fatalf("got %v, want latest recorded value 0.9 (devices collapse to one bucket)", got)
	}
}
