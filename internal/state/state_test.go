package state

import "testing"

func TestCanTransition_AllowsExpected(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{Absent, Active},
		{Active, Active},
		{Active, Stopped},
		{Active, Absent},
		{Stopped, Active},
		{Stopped, Absent},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_BlocksUnexpected(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{Absent, Stopped},
		{Absent, Absent},
		{Stopped, Stopped},
		{State("bogus"), Active},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be blocked", tc.from, tc.to)
		}
	}
}

func TestOf(t *testing.T) {
	if got := Of(false, true); got != Absent {
		t.Fatalf("Of(false,true) = %q", got)
	}
	if got := Of(true, true); got != Active {
		t.Fatalf("Of(true,true) = %q", got)
	}
	if got := Of(true, false); got != Stopped {
		t.Fatalf("Of(true,false) = %q", got)
	}
}

func TestAllStates(t *testing.T) {
	got := AllStates()
	if len(got) != len(allStates) {
		t.Fatalf("AllStates length = %d, want %d", len(got), len(allStates))
	}

	seen := map[State]bool{}
	for _, s := range got {
		if seen[s] {
			t.Fatalf("duplicate state %q", s)
		}
		seen[s] = true
	}

	for _, s := range allStates {
		if !seen[s] {
			t.Fatalf("missing state %q", s)
		}
	}
}
