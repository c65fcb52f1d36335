// Package history provides the undo command stack.
//
// The stack is strictly LIFO and undo-only: popping a command runs its
// inverse and never pushes a new entry, so there is no redo.
package history

import (
	"sync"
	"time"
)

// Command is one undoable mutation.
type Command struct {
	Timestamp time.Time
	// Label describes the mutation for logs, e.g. "append 3f2a...".
	Label string
	// Undo reverts the mutation.
	Undo func()
}

// Stack is a chronological stack of commands.
type Stack struct {
	mu       sync.Mutex
	commands []Command
	limit    int
}

// New creates a stack. A positive limit drops the oldest commands once
// exceeded; zero means unbounded.
func New(limit int) *Stack {
	return &Stack{limit: limit}
}

// Push records a command. Commands with a nil Undo are ignored.
func (s *Stack) Push(cmd Command) {
	if cmd.Undo == nil {
		return
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	if s.limit > 0 && len(s.commands) > s.limit {
		s.commands = append(s.commands[:0], s.commands[len(s.commands)-s.limit:]...)
	}
	s.mu.Unlock()
}

// Undo pops the most recent command and runs it. It returns false on an
// empty stack.
func (s *Stack) Undo() (Command, bool) {
	s.mu.Lock()
	n := len(s.commands)
	if n == 0 {
		s.mu.Unlock()
		return Command{}, false
	}
	cmd := s.commands[n-1]
	s.commands[n-1] = Command{}
	s.commands = s.commands[:n-1]
	s.mu.Unlock()

	// Run outside the lock: the inverse may inspect the stack.
	cmd.Undo()
	return cmd, true
}

// Len returns the number of pending commands.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands)
}

// Peek returns the most recent command without running it.
func (s *Stack) Peek() (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commands) == 0 {
		return Command{}, false
	}
	return s.commands[len(s.commands)-1], true
}

// Clear drops every command.
func (s *Stack) Clear() {
	s.mu.Lock()
	s.commands = nil
	s.mu.Unlock()
}
