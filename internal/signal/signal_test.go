package signal

import (
	"testing"

	"meanrev/internal/domain"
)

// stubGenerator is a minimal Generator implementation used in registry tests.
type stubGenerator struct {
	name string
}

func (s *stubGenerator) Name() string { return s.name }
func (s *stubGenerator) Signals(_ *domain.PricePanel) (*domain.SignalMatrix, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	g := &stubGenerator{name: "test-generator"}

	r.Register(g)

	got, ok := r.Get("test-generator")
	if !ok {
		t.Fatal("Get returned false for registered generator")
	}
	if got.Name() != "test-generator" {
		t.Errorf("Get returned generator with Name() = %q, want %q", got.Name(), "test-generator")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered generator")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubGenerator{name: "zscore"})
	r.Register(&stubGenerator{name: "momentum"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	if names[0] != "momentum" || names[1] != "zscore" {
		t.Errorf("List returned %v, want [momentum zscore]", names)
	}
}
