package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
)

func TestWrapEvent(t *testing.T) {
	boom := errors.New("boom")
	m := fsm.NewFSM("off",
		fsm.Events{{Name: "flip", Src: []string{"off"}, Dst: "on"}},
		fsm.Callbacks{
			OnEnter("on"): WrapEvent(func(context.Context, *fsm.Event) error { return boom }),
		},
	)

	err := m.Event(context.Background(), "flip")
	if !errors.Is(err, boom) {
		t.Fatalf("Event() = %v, want %v", err, boom)
	}
	if m.Current() != "on" {
		t.Errorf("state = %s, enter errors do not roll back", m.Current())
	}
}

func TestOnEnter(t *testing.T) {
	var entered bool
	m := fsm.NewFSM("off",
		fsm.Events{{Name: "flip", Src: []string{"off"}, Dst: "on"}},
		fsm.Callbacks{
			OnEnter("on"): WrapEvent(func(context.Context, *fsm.Event) error {
				entered = true
				return nil
			}),
		},
	)
	if err := m.Event(context.Background(), "flip"); err != nil {
		t.Fatal(err)
	}
	if !entered {
		t.Error("enter callback not fired")
	}
}

func TestSettle(t *testing.T) {
	other := errors.New("other")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no transition", fsm.NoTransitionError{}, nil},
		{"canceled", fsm.CanceledError{}, nil},
		{"real", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Settle(tt.err); !errors.Is(got, tt.want) || (got == nil) != (tt.want == nil) {
				t.Errorf("Settle(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
