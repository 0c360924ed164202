package items

import (
	"errors"
	"reflect"
	"testing"

	"autodrop/internal/store"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{in: "10.0.0.1", ok: true},
		{in: "0.0.0.0", ok: true},
		{in: "255.255.255.255", ok: true},
		{in: "256.0.0.1", ok: false},
		{in: "10.0.0", ok: false},
		{in: "10.0.0.1.5", ok: false},
		{in: "10.0.0.a", ok: false},
		{in: "10..0.1", ok: false},
		{in: "+1.0.0.1", ok: false},
		{in: "-1.0.0.1", ok: false},
		{in: "1000.0.0.1", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range cases {
		err := Validate(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("Validate(%q) err=%v, want ok=%v", tc.in, err, tc.ok)
		}
		if err != nil && !errors.Is(err, store.ErrValidation) {
			t.Fatalf("Validate(%q) error not a validation error: %v", tc.in, err)
		}
	}
}

func TestFromTextDropsCommandLine(t *testing.T) {
	b := FromText("/push\n10.0.0.1\n\n  10.0.0.2  \nnope\r\n10.0.0.3")
	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	if !reflect.DeepEqual(b.Valid, want) {
		t.Fatalf("valid = %v, want %v", b.Valid, want)
	}
	if !reflect.DeepEqual(b.Invalid, []string{"nope"}) {
		t.Fatalf("invalid = %v", b.Invalid)
	}
	if b.Decision() != DecisionPartial {
		t.Fatalf("decision = %v", b.Decision())
	}
}

func TestFromTextWithoutCommandLine(t *testing.T) {
	b := FromText("10.0.0.1\n10.0.0.2")
	if len(b.Valid) != 2 {
		t.Fatalf("valid = %v", b.Valid)
	}
}

func TestDecision(t *testing.T) {
	cases := []struct {
		name  string
		batch Batch
		want  Decision
	}{
		{name: "missing", batch: Batch{}, want: DecisionMissing},
		{name: "accept", batch: Batch{Valid: []string{"a"}}, want: DecisionAccept},
		{name: "reject", batch: Batch{Invalid: []string{"a"}}, want: DecisionReject},
		{name: "partial", batch: Batch{Valid: []string{"a"}, Invalid: []string{"b"}}, want: DecisionPartial},
	}
	for _, tc := range cases {
		if got := tc.batch.Decision(); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseKeepsDuplicates(t *testing.T) {
	b := Parse([]string{"10.0.0.1", "10.0.0.1"})
	if len(b.Valid) != 2 {
		t.Fatalf("duplicates must be kept as distinct entries: %v", b.Valid)
	}
}
