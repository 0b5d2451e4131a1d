package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestAnswerStoreLastWriteWins(t *testing.T) {
	s := NewAnswerStore()
	q1 := uuid.New()

	if _, ok := s.Get(q1); ok {
		t.Fatal("unanswered question should report ok=false")
	}

	if err := s.Set(q1, "A"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(q1, "B"); err != nil {
		t.Fatal(err)
	}

	v, ok := s.Get(q1)
	if !ok || v != "B" {
		t.Errorf("Get = (%q, %v), want (B, true)", v, ok)
	}
	if s.AnsweredCount() != 1 {
		t.Errorf("AnsweredCount = %d, want 1", s.AnsweredCount())
	}
}

func TestAnswerStoreSurvivesNavigation(t *testing.T) {
	s := NewAnswerStore()
	q1, q2 := uuid.New(), uuid.New()

	_ = s.Set(q1, "B")
	_ = s.Set(q2, "some code")

	// Navigating is invisible to the store; earlier answers persist.
	if v, _ := s.Get(q1); v != "B" {
		t.Errorf("q1 answer = %q, want B", v)
	}
	if s.AnsweredCount() != 2 {
		t.Errorf("AnsweredCount = %d, want 2", s.AnsweredCount())
	}
}

func TestAnswerStoreLock(t *testing.T) {
	s := NewAnswerStore()
	q1 := uuid.New()
	_ = s.Set(q1, "answer")

	s.Lock()

	if err := s.Set(q1, "mutated"); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("Set after lock: err = %v, want ErrSessionLocked", err)
	}

	// The locked store never mutates and stays readable for snapshots.
	if v, _ := s.Get(q1); v != "answer" {
		t.Errorf("locked value = %q, want %q", v, "answer")
	}
	snap := s.Snapshot()
	if snap[q1.String()] != "answer" {
		t.Errorf("snapshot value = %q, want %q", snap[q1.String()], "answer")
	}
}

func TestAnswerStoreSnapshotIsCopy(t *testing.T) {
	s := NewAnswerStore()
	q1 := uuid.New()
	_ = s.Set(q1, "v1")

	snap := s.Snapshot()
	snap[q1.String()] = "tampered"

	if v, _ := s.Get(q1); v != "v1" {
		t.Error("mutating a snapshot must not affect the store")
	}
}
