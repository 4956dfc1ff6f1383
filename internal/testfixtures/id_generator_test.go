package testfixtures

import (
	"reflect"
	"testing"
)

func TestIDGeneratorIssuesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("slot")

	if last := gen.Last(); last != "" {
		t.Fatalf("expected no id before Next, got %q", last)
	}
	first := gen.Next()
	second := gen.NextFunc()()

	if first != "slot-1" || second != "slot-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if got := gen.Issued(); !reflect.DeepEqual(got, []string{"slot-1", "slot-2"}) {
		t.Fatalf("unexpected issued ids %v", got)
	}
	if gen.Last() != "slot-2" {
		t.Fatalf("expected slot-2 as last id, got %q", gen.Last())
	}
}

func TestIDGeneratorDefaultsPrefix(t *testing.T) {
	if id := NewIDGenerator("").Next(); id != "id-1" {
		t.Fatalf("expected id-1, got %q", id)
	}
}
