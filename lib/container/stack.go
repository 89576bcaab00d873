package container

// UniqueStack is a stack that has unique items.
// The value pushed last will popped first.
// Same values cannot be exist in this stack, so it also works as an ordered set.
type UniqueStack struct {
	has   map[string]bool
	items []string
}

// NewUniqueStack creates a new UniqueStack.
func NewUniqueStack() *UniqueStack {
	return &UniqueStack{
		has: make(map[string]bool),
	}
}

// Push pushes a value to the stack.
// If the same value has already exists in the stack, it does nothing and returns false.
func (s *UniqueStack) Push(v string) bool {
	if s.has[v] {
		return false
	}
	s.has[v] = true
	s.items = append(s.items, v)
	return true
}

// Pop pops the last pushed value from the stack.
// The second return value is false, if there isn't any value in the stack.
func (s *UniqueStack) Pop() (string, bool) {
	if len(s.items) == 0 {
		return "", false
	}
	n := len(s.items) - 1
	v := s.items[n]
	s.items = s.items[:n]
	delete(s.has, v)
	return v, true
}

// Has reports whether the value is in the stack.
func (s *UniqueStack) Has(v string) bool {
	return s.has[v]
}

// Len returns number of values in the stack.
func (s *UniqueStack) Len() int {
	return len(s.items)
}
