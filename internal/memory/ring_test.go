package memory

import (
	"fmt"
	"testing"
)

func TestRingWrap(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.push(Turn{Content: fmt.Sprint(i)})
	}
	got := r.slice()
	if len(got) != 3 || got[0].Content != "2" || got[2].Content != "4" {
		t.Errorf("slice = %v, want [2 3 4]", got)
	}
	if r.len() != 3 {
		t.Errorf("len = %d, want 3", r.len())
	}
}

func TestRingPartial(t *testing.T) {
	r := newRing(4)
	r.push(Turn{Content: "a"})
	r.push(Turn{Content: "b"})
	got := r.slice()
	if len(got) != 2 || got[0].Content != "a" || got[1].Content != "b" {
		t.Errorf("slice = %v", got)
	}
}

func TestRingReset(t *testing.T) {
	r := newRing(2)
	r.push(Turn{Content: "a"})
	r.reset()
	if r.len() != 0 || len(r.slice()) != 0 {
		t.Error("reset did not empty the ring")
	}
	r.push(Turn{Content: "b"})
	if got := r.slice(); got[0].Content != "b" {
		t.Errorf("after reset slice = %v", got)
	}
}
