package scanner

import (
	"context"
	"testing"

	"TariffIntel/internal/domain"
)

type stubScanner struct{ name string }

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(_ context.Context, req Request) domain.SourceResult {
	return domain.NewSourceResult(req.Source, req.URL)
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: "rss"})
	reg.Register(stubScanner{name: "atom"})

	got, err := reg.Resolve("rss")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got.Name() != "rss" {
		t.Fatalf("unexpected scanner: %s", got.Name())
	}

	if _, err := reg.Resolve("html"); err == nil {
		t.Fatal("expected error for unknown scanner")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "atom" || names[1] != "rss" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestZeroRegistryRegister(t *testing.T) {
	t.Parallel()

	var reg Registry
	reg.Register(stubScanner{name: "rss"})
	if _, err := reg.Resolve("rss"); err != nil {
		t.Fatalf("Resolve after Register on zero registry: %v", err)
	}
}
