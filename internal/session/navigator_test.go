package session

import (
	"errors"
	"testing"
)

func TestNavigatorBounds(t *testing.T) {
	n := NewNavigator(5)

	if n.Current() != 0 {
		t.Fatalf("initial index = %d, want 0", n.Current())
	}

	// Previous at the first question is a no-op.
	if err := n.Previous(); err != nil {
		t.Fatal(err)
	}
	if n.Current() != 0 {
		t.Errorf("index after Previous at start = %d, want 0", n.Current())
	}

	// Next walks to the end and then no-ops.
	for i := 0; i < 10; i++ {
		if err := n.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if n.Current() != 4 {
		t.Errorf("index after repeated Next = %d, want 4", n.Current())
	}

	// GoTo clamps silently.
	tests := []struct {
		target int
		want   int
	}{
		{2, 2},
		{-1, 0},
		{99, 4},
		{0, 0},
		{4, 4},
	}
	for _, tt := range tests {
		if err := n.GoTo(tt.target); err != nil {
			t.Fatal(err)
		}
		if n.Current() != tt.want {
			t.Errorf("GoTo(%d): index = %d, want %d", tt.target, n.Current(), tt.want)
		}
	}
}

func TestNavigatorLock(t *testing.T) {
	n := NewNavigator(3)
	if err := n.Next(); err != nil {
		t.Fatal(err)
	}
	n.Lock()

	if err := n.Next(); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("Next after lock: err = %v, want ErrSessionLocked", err)
	}
	if err := n.Previous(); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("Previous after lock: err = %v, want ErrSessionLocked", err)
	}
	if err := n.GoTo(2); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("GoTo after lock: err = %v, want ErrSessionLocked", err)
	}
	// Index stays readable and unchanged.
	if n.Current() != 1 {
		t.Errorf("index mutated by locked calls: %d", n.Current())
	}
}
