package job

// Stack is a LIFO of barriers whose pushes and pops can be mirrored to
// durable storage through optional hooks. The in-memory slice is the only
// copy the engine reads; hooks observe mutations but never feed back.
type Stack[T any] struct {
	OnPush func(T)
	OnPop  func()
	items  []T
}

// NewStack returns a stack seeded with items (bottom first).
func NewStack[T any](items []T) *Stack[T] {
	return &Stack[T]{items: append([]T(nil), items...)}
}

// Push adds v on top.
func (s *Stack[T]) Push(v T) {
	s.items = append(s.items, v)
	if s.OnPush != nil {
		s.OnPush(v)
	}
}

// Pop removes the top element. It is a no-op on an empty stack.
func (s *Stack[T]) Pop() {
	if len(s.items) == 0 {
		return
	}
	s.items = s.items[:len(s.items)-1]
	if s.OnPop != nil {
		s.OnPop()
	}
}

// Top returns the top element.
func (s *Stack[T]) Top() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Len returns the number of elements.
func (s *Stack[T]) Len() int { return len(s.items) }

// Items returns a copy of the stack contents, bottom first.
func (s *Stack[T]) Items() []T { return append([]T(nil), s.items...) }

// Unwind pops every element for which covers returns false, stopping at the
// first element that covers the current path. Because entries are visited
// in path order, a barrier that stops covering never covers again.
func (s *Stack[T]) Unwind(covers func(T) bool) (T, bool) {
	for {
		top, ok := s.Top()
		if !ok {
			return top, false
		}
		if covers(top) {
			return top, true
		}
		s.Pop()
	}
}
