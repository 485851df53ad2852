package model

import (
	"sync"
	"testing"
)

func TestStateManagerLifecycle(t *testing.T) {
	s := NewStateManager()
	if s.IsFitted() {
		t.Error("new StateManager reports fitted")
	}

	s.SetDimensions(12, 300)
	s.SetFitted()
	if !s.IsFitted() {
		t.Error("IsFitted() = false after SetFitted")
	}
	if nf, ns := s.GetDimensions(); nf != 12 || ns != 300 {
		t.Errorf("GetDimensions() = %d/%d, want 12/300", nf, ns)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("IsFitted() = true after Reset")
	}
	if nf, ns := s.GetDimensions(); nf != 0 || ns != 0 {
		t.Errorf("GetDimensions() after Reset = %d/%d, want 0/0", nf, ns)
	}
}

func TestStateManagerConcurrentReads(t *testing.T) {
	s := NewStateManager()
	s.SetDimensions(4, 100)
	s.SetFitted()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if !s.IsFitted() {
					t.Error("IsFitted() = false during concurrent reads")
					return
				}
				s.GetDimensions()
			}
		}()
	}
	wg.Wait()
}
