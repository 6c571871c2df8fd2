package ptrack

import (
	"testing"
)

func TestPriorityHeap(t *testing.T) {
	h := make(priorityHeap[string], 0)
	h.Push("c", 3)
	h.Push("a", 1)
	h.Push("d", 4)
	h.Push("b", 2)
	if h.Peek().value != "a" {
		t.Errorf("Expected 'a' on top, got '%s'", h.Peek().value)
	}
	expected := []string{"a", "b", "c", "d"}
	for i := range expected {
		item := h.Pop()
		if item.value != expected[i] {
			t.Errorf("Pop %d: expected '%s', got '%s'", i, expected[i], item.value)
		}
	}
	if h.Len() != 0 {
		t.Errorf("Heap must be empty, got %d items", h.Len())
	}
}

func TestKnnHeapNotFull(t *testing.T) {
	h := newKnnHeap(5)
	h.offer(7, 4)
	h.offer(2, 1)
	if h.full() {
		t.Errorf("Heap with 2 of 5 items must not be full")
	}
	neighbors := h.neighbors()
	if len(neighbors) != 2 || neighbors[0].Index != 2 || neighbors[1].Index != 7 {
		t.Errorf("Expected neighbors [2 7], got %v", neighbors)
	}
}
