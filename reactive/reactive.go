// Package reactive provides observable value cells with explicit
// dependencies. An observer names the cells it depends on when it is
// registered and runs again only when one of those cells changes; nothing is
// tracked implicitly.
//
// Observers run synchronously in the goroutine that called Set, after the new
// value is stored, in registration order. An observer may Set other cells (or
// the same cell); it will see the new value immediately.
package reactive

import (
	"slices"
	"sync"
)

// Source is anything an observer can depend on.
type Source interface {
	listen(fn func()) (cancel func())
}

type listener struct {
	id int
	fn func()
}

type listeners struct {
	mu   sync.Mutex
	next int
	list []listener
}

func (l *listeners) add(fn func()) func() {
	l.mu.Lock()
	l.next++
	id := l.next
	l.list = append(l.list, listener{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.list = slices.DeleteFunc(l.list, func(x listener) bool { return x.id == id })
			l.mu.Unlock()
		})
	}
}

func (l *listeners) snapshot() []listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.list)
}

// Cell holds one value of type T.
type Cell[T any] struct {
	mu    sync.RWMutex
	value T
	equal func(a, b T) bool
	subs  listeners
}

// NewCell returns a cell holding v. Every Set notifies observers.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{value: v}
}

// NewComparableCell returns a cell that skips notification when the new
// value equals the current one.
func NewComparableCell[T comparable](v T) *Cell[T] {
	return &Cell[T]{value: v, equal: func(a, b T) bool { return a == b }}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and notifies observers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	if c.equal != nil && c.equal(c.value, v) {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.mu.Unlock()
	c.notify()
}

// Update replaces the value with fn(current) and notifies observers.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	old := c.value
	v := fn(old)
	if c.equal != nil && c.equal(old, v) {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.mu.Unlock()
	c.notify()
}

// Subscribe calls fn with the new value after every change.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	return c.subs.add(func() { fn(c.Get()) })
}

func (c *Cell[T]) listen(fn func()) func() { return c.subs.add(fn) }

func (c *Cell[T]) notify() {
	for _, l := range c.subs.snapshot() {
		l.fn()
	}
}

// Observe runs fn whenever any of deps changes. fn is not run at
// registration. The returned cancel detaches fn from every dependency.
func Observe(fn func(), deps ...Source) (cancel func()) {
	cancels := make([]func(), len(deps))
	for i, d := range deps {
		cancels[i] = d.listen(fn)
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Once runs fn on the first change of any of deps, then detaches.
func Once(fn func(), deps ...Source) (cancel func()) {
	var (
		once   sync.Once
		mu     sync.Mutex
		detach func()
	)
	mu.Lock()
	detach = Observe(func() {
		once.Do(func() {
			mu.Lock()
			d := detach
			mu.Unlock()
			if d != nil {
				d()
			}
			fn()
		})
	}, deps...)
	mu.Unlock()
	return detach
}
