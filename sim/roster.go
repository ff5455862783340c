package sim

import (
	"cmp"
	"container/list"
	"iter"
	"slices"
)

// entry locates a member inside the roster holding it.
type entry struct {
	elem  *list.Element
	owner *list.List
}

// roster is an ordered collection, newest first. Members keep the entry
// returned by pushFront; removal through it does not search.
type roster[T any] struct {
	l list.List
}

func (r *roster[T]) pushFront(v T) entry {
	return entry{elem: r.l.PushFront(v), owner: &r.l}
}

// holds reports whether e is a live entry of r.
func (r *roster[T]) holds(e entry) bool { return e.elem != nil && e.owner == &r.l }

// remove drops the member at e. It reports false if r does not hold e.
func (r *roster[T]) remove(e entry) bool {
	if !r.holds(e) {
		return false
	}
	r.l.Remove(e.elem)
	return true
}

func (r *roster[T]) Len() int { return r.l.Len() }

// all yields the members front to back.
func (r *roster[T]) all() iter.Seq[T] {
	return func(yield func(T) bool) {
		for e := r.l.Front(); e != nil; e = e.Next() {
			if !yield(e.Value.(T)) {
				return
			}
		}
	}
}

// slice returns a copy of the members front to back.
func (r *roster[T]) slice() []T {
	out := make([]T, 0, r.l.Len())
	for v := range r.all() {
		out = append(out, v)
	}
	return out
}

// deleteFunc removes every member for which del returns true and reports how
// many were removed.
func (r *roster[T]) deleteFunc(del func(T) bool) int {
	n := 0
	for e := r.l.Front(); e != nil; {
		next := e.Next()
		if del(e.Value.(T)) {
			r.l.Remove(e)
			n++
		}
		e = next
	}
	return n
}

// sortByKey reorders the members by ascending key, keeping ties in place.
// Entries held by the members stay valid.
func sortByKey[T any, K cmp.Ordered](r *roster[T], key func(T) K) {
	elems := make([]*list.Element, 0, r.l.Len())
	for e := r.l.Front(); e != nil; e = e.Next() {
		elems = append(elems, e)
	}
	slices.SortStableFunc(elems, func(a, b *list.Element) int {
		return cmp.Compare(key(a.Value.(T)), key(b.Value.(T)))
	})
	for _, e := range elems {
		r.l.MoveToBack(e)
	}
}
