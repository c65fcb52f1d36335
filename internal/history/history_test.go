package history

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestUndoOrder(t *testing.T) {
	s := New(0)
	var got []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.Push(Command{Timestamp: time.Now(), Label: name, Undo: func() { got = append(got, name) }})
	}
	for s.Len() > 0 {
		if _, ok := s.Undo(); !ok {
			t.Fatal("Undo returned false on non-empty stack")
		}
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, got); diff != "" {
		t.Errorf("undo order (-want +got):\n%s", diff)
	}
}

func TestUndoEmptyIsNoop(t *testing.T) {
	s := New(0)
	if _, ok := s.Undo(); ok {
		t.Error("Undo on empty stack reported success")
	}
}

func TestUndoDoesNotPush(t *testing.T) {
	s := New(0)
	s.Push(Command{Undo: func() {
		// An inverse that itself records history would enable redo.
	}})
	s.Undo()
	if s.Len() != 0 {
		t.Errorf("Len after undo = %d, want 0", s.Len())
	}
}

func TestLimit(t *testing.T) {
	s := New(2)
	var ran []int
	for i := 0; i < 4; i++ {
		i := i
		s.Push(Command{Undo: func() { ran = append(ran, i) }})
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	s.Undo()
	s.Undo()
	s.Undo()
	if diff := cmp.Diff([]int{3, 2}, ran); diff != "" {
		t.Errorf("ran (-want +got):\n%s", diff)
	}
}

func TestNilUndoIgnored(t *testing.T) {
	s := New(0)
	s.Push(Command{Label: "nothing"})
	if s.Len() != 0 {
		t.Error("command without inverse was recorded")
	}
}
