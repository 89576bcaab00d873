package sqlite

import (
	"fmt"
	"strings"
)

// pairs are "key = ?" pairs of a statement with their values.
type pairs struct {
	keys []string
	vals []interface{}
}

func (p *pairs) Add(k string, v interface{}) {
	p.keys = append(p.keys, k)
	p.vals = append(p.vals, v)
}

func (p *pairs) Len() int {
	return len(p.keys)
}

func (p *pairs) Vals() []interface{} {
	return p.vals
}

func (p *pairs) join(sep string) string {
	ps := make([]string, len(p.keys))
	for i, k := range p.keys {
		ps[i] = fmt.Sprintf("%v = ?", k)
	}
	return strings.Join(ps, sep)
}

// Where builds a WHERE clause matching all of its pairs.
type Where struct {
	pairs
}

func NewWhere() *Where {
	return &Where{}
}

func (w *Where) Stmt() string {
	if w.Len() == 0 {
		return ""
	}
	return " WHERE " + w.join(" AND ")
}

// Set builds a SET clause of an UPDATE.
type Set struct {
	pairs
}

func NewSet() *Set {
	return &Set{}
}

func (s *Set) Stmt() string {
	return " SET " + s.join(", ")
}
