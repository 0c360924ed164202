package snapshot

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Snapshot{
		Producers:   []int64{1},
		Consumers:   []int64{2, 3},
		Queue:       []string{"10.0.0.3", "10.0.0.3"},
		Distributed: map[int64][]string{2: {"10.0.0.1"}, 3: {}},
		Enabled:     true,
		Timers:      map[int64]Timer{2: {IntervalSeconds: 30, Active: true}},
		SavedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	in.Version = Version
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestDecodeNormalizesNil(t *testing.T) {
	out, err := Decode([]byte(`{"version":1,"distributed":{"5":null}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Queue == nil || out.Producers == nil || out.Consumers == nil || out.Timers == nil {
		t.Fatalf("expected nil collections to be normalized: %+v", out)
	}
	if items, ok := out.Distributed[5]; !ok || items == nil {
		t.Fatalf("expected empty record for 5, got %v", out.Distributed)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	if _, err := Decode([]byte(`{"version":99}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

type fakePersister struct {
	snap Snapshot
	err  error
}

func (p *fakePersister) Save(ctx context.Context, snap Snapshot) error {
	p.snap = snap
	return p.err
}

func (p *fakePersister) Load(ctx context.Context) (Snapshot, error) {
	return p.snap, p.err
}

func TestLoadOrEmpty(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "not-found", err: ErrNotFound},
		{name: "malformed", err: ErrMalformed},
		{name: "unavailable", err: ErrUnavailable},
	}
	for _, tc := range cases {
		got := LoadOrEmpty(context.Background(), &fakePersister{err: tc.err}, nil)
		if !reflect.DeepEqual(got, Empty()) {
			t.Fatalf("%s: expected empty snapshot, got %+v", tc.name, got)
		}
	}

	stored := Empty()
	stored.Queue = []string{"a"}
	got := LoadOrEmpty(context.Background(), &fakePersister{snap: stored}, nil)
	if len(got.Queue) != 1 {
		t.Fatalf("expected stored snapshot, got %+v", got)
	}
}
