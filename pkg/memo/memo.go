// Package memo provides the recomputation-avoidance nodes the derivation
// graph is built from. Each node remembers the last input tuple it computed
// with, compared by identity (not deep equality), and the last output; the
// function only reruns when an input changed.
//
// Nodes are single-writer: the graph is driven by one logical caller at a
// time, one upstream state transition fully applied before the next. They are
// not safe for concurrent use.
package memo

import (
	"reflect"
)

// same reports input identity: pointers, slices, maps and funcs compare by
// reference (slices additionally by length), comparable values by ==.
// Distinct values that happen to be deep-equal are deliberately treated as
// different inputs.
func same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && (va.Len() == 0 || va.Pointer() == vb.Pointer())
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	default:
		if !va.Type().Comparable() {
			return false
		}
		return a == b
	}
}

type cell[R any] struct {
	metrics *Metrics
	valid   bool
	last    []any
	out     R
}

func (c *cell[R]) lookup(args ...any) (R, bool) {
	if c.valid && len(args) == len(c.last) {
		hit := true
		for i := range args {
			if !same(args[i], c.last[i]) {
				hit = false
				break
			}
		}
		if hit {
			c.metrics.hit()
			return c.out, true
		}
	}
	var zero R
	return zero, false
}

func (c *cell[R]) store(out R, args ...any) R {
	c.metrics.computed()
	c.valid = true
	c.last = args
	c.out = out
	return out
}

// Func1 memoizes a pure function of one input.
type Func1[A, R any] struct {
	cell[R]
	fn func(A) R
}

func NewFunc1[A, R any](fn func(A) R) *Func1[A, R] { return &Func1[A, R]{fn: fn} }

func (f *Func1[A, R]) WithMetrics(m *Metrics) *Func1[A, R] { f.metrics = m; return f }

func (f *Func1[A, R]) At(a A) R {
	if out, ok := f.lookup(a); ok {
		return out
	}
	return f.store(f.fn(a), a)
}

// Func2 memoizes a pure function of two inputs.
type Func2[A, B, R any] struct {
	cell[R]
	fn func(A, B) R
}

func NewFunc2[A, B, R any](fn func(A, B) R) *Func2[A, B, R] { return &Func2[A, B, R]{fn: fn} }

func (f *Func2[A, B, R]) WithMetrics(m *Metrics) *Func2[A, B, R] { f.metrics = m; return f }

func (f *Func2[A, B, R]) At(a A, b B) R {
	if out, ok := f.lookup(a, b); ok {
		return out
	}
	return f.store(f.fn(a, b), a, b)
}

// Func3 memoizes a pure function of three inputs.
type Func3[A, B, C, R any] struct {
	cell[R]
	fn func(A, B, C) R
}

func NewFunc3[A, B, C, R any](fn func(A, B, C) R) *Func3[A, B, C, R] {
	return &Func3[A, B, C, R]{fn: fn}
}

func (f *Func3[A, B, C, R]) WithMetrics(m *Metrics) *Func3[A, B, C, R] { f.metrics = m; return f }

func (f *Func3[A, B, C, R]) At(a A, b B, c C) R {
	if out, ok := f.lookup(a, b, c); ok {
		return out
	}
	return f.store(f.fn(a, b, c), a, b, c)
}

// Func4 memoizes a pure function of four inputs.
type Func4[A, B, C, D, R any] struct {
	cell[R]
	fn func(A, B, C, D) R
}

func NewFunc4[A, B, C, D, R any](fn func(A, B, C, D) R) *Func4[A, B, C, D, R] {
	return &Func4[A, B, C, D, R]{fn: fn}
}

func (f *Func4[A, B, C, D, R]) WithMetrics(m *Metrics) *Func4[A, B, C, D, R] { f.metrics = m; return f }

func (f *Func4[A, B, C, D, R]) At(a A, b B, c C, d D) R {
	if out, ok := f.lookup(a, b, c, d); ok {
		return out
	}
	return f.store(f.fn(a, b, c, d), a, b, c, d)
}

// Keyed is a node family parameterized by a runtime key, such as a track
// name. Subgraphs are created on first use and retained for the lifetime of
// the family: the key space is small and bounded by the capture's schema.
type Keyed[K comparable, N any] struct {
	create func(K) N
	nodes  map[K]N
}

func NewKeyed[K comparable, N any](create func(K) N) *Keyed[K, N] {
	return &Keyed[K, N]{create: create, nodes: make(map[K]N)}
}

// Get returns the node for key, creating it on first use.
func (k *Keyed[K, N]) Get(key K) N {
	n, ok := k.nodes[key]
	if !ok {
		n = k.create(key)
		k.nodes[key] = n
	}
	return n
}

// Len returns the number of instantiated subgraphs.
func (k *Keyed[K, N]) Len() int { return len(k.nodes) }
