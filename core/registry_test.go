package core

import "testing"

func TestRegistryPutTake(t *testing.T) {
	reg := newRegistry()
	reg.put("req-1", "term-1")
	id, ok := reg.take("req-1")
	if !ok || id != "term-1" {
		t.Fatalf("expected term-1, got %q ok=%v", id, ok)
	}
	if _, ok := reg.take("req-1"); ok {
		t.Fatalf("expected entry consumed")
	}
}

func TestRegistryDrop(t *testing.T) {
	reg := newRegistry()
	reg.put("req-1", "term-1")
	reg.drop("req-1")
	if _, ok := reg.take("req-1"); ok {
		t.Fatalf("expected entry dropped")
	}
	if reg.len() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestRegistryIgnoresEmptyToken(t *testing.T) {
	reg := newRegistry()
	reg.put("", "term-1")
	if reg.len() != 0 {
		t.Fatalf("empty token must not register")
	}
	if _, ok := reg.take(""); ok {
		t.Fatalf("empty token must not resolve")
	}
}
