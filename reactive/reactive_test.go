package reactive

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCell_SubscribeOrder(t *testing.T) {
	c := NewCell(0)
	var got []string
	c.Subscribe(func(v int) { got = append(got, "a") })
	c.Subscribe(func(v int) { got = append(got, "b") })
	c.Set(1)
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestCell_Cancel(t *testing.T) {
	c := NewCell("x")
	n := 0
	cancel := c.Subscribe(func(string) { n++ })
	c.Set("y")
	cancel()
	cancel()
	c.Set("z")
	if n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestComparableCell_SkipsEqual(t *testing.T) {
	c := NewComparableCell(3)
	n := 0
	c.Subscribe(func(int) { n++ })
	c.Set(3)
	c.Update(func(v int) int { return v })
	c.Set(4)
	if n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestObserve_ExplicitDeps(t *testing.T) {
	a := NewCell(0)
	b := NewCell(0)
	unrelated := NewCell(0)
	n := 0
	cancel := Observe(func() { n++ }, a, b)
	a.Set(1)
	b.Set(1)
	unrelated.Set(1)
	if n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
	cancel()
	a.Set(2)
	if n != 2 {
		t.Fatalf("calls after cancel = %d", n)
	}
}

func TestObserve_ReentrantSet(t *testing.T) {
	c := NewCell([]int{1})
	c.Subscribe(func(v []int) {
		if len(v) == 0 {
			c.Set([]int{0})
		}
	})
	c.Set(nil)
	if got := c.Get(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("self-heal failed: %v", got)
	}
}

func TestOnce(t *testing.T) {
	a := NewCell(0)
	b := NewCell(0)
	n := 0
	Once(func() { n++ }, a, b)
	b.Set(1)
	a.Set(1)
	b.Set(2)
	if n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}
