package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestPool_SharesHandlePerLocation(t *testing.T) {
	p := NewPool(DefaultOptions())
	defer p.Close()

	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	s2, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	if s1.DB() != s2.DB() {
		t.Error("Acquire() returned different handles for one location")
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}

	if err := s1.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d after first release, want 1", p.Len())
	}
	if err := s2.DB().Ping(); err != nil {
		t.Errorf("handle unusable while still referenced: %v", err)
	}

	if err := s2.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d after last release, want 0", p.Len())
	}
}

func TestPool_RelativeAndAbsolutePathsShare(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	p := NewPool(DefaultOptions())
	defer p.Close()

	s1, err := p.Acquire("test.db")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer s1.Close()
	s2, err := p.Acquire(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer s2.Close()

	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
	if s1.Location() != s2.Location() {
		t.Errorf("Location() %q != %q", s1.Location(), s2.Location())
	}
}

func TestPool_DistinctLocations(t *testing.T) {
	p := NewPool(DefaultOptions())
	defer p.Close()

	dir := t.TempDir()
	a, err := p.Acquire(filepath.Join(dir, "a.db"))
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer a.Close()
	b, err := p.Acquire(filepath.Join(dir, "b.db"))
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer b.Close()

	if a.DB() == b.DB() {
		t.Error("distinct locations share a handle")
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestPool_DoubleCloseReleasesOnce(t *testing.T) {
	p := NewPool(DefaultOptions())
	defer p.Close()

	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	s2, err := p.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer s2.Close()

	s1.Close()
	s1.Close()

	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (second Close must not release s2's reference)", p.Len())
	}
}

func TestPool_AcquireAfterClose(t *testing.T) {
	p := NewPool(DefaultOptions())
	if err := p.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	_, err := p.Acquire(filepath.Join(t.TempDir(), "test.db"))
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire() error = %v, want ErrPoolClosed", err)
	}
}

func TestPool_OpenFailureLeavesNoHandle(t *testing.T) {
	p := NewPool(DefaultOptions())
	defer p.Close()

	if _, err := p.Acquire("/nonexistent/dir/test.db"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}
