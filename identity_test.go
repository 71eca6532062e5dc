package safeinterval

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func probeA(context.Context, ...any) (any, error) { return nil, nil }
func probeB(context.Context, ...any) (any, error) { return nil, nil }

func TestResolveIdentity_ExplicitKeyWins(t *testing.T) {
	got, err := resolveIdentity("my-key", probeA)
	if err != nil {
		t.Fatalf("resolveIdentity: %v", err)
	}
	if got != "my-key" {
		t.Errorf("key = %q, want %q", got, "my-key")
	}

	// An explicit key needs no callable inspection at all.
	if _, err := resolveIdentity("still-fine", nil); err != nil {
		t.Errorf("explicit key with nil callable: %v", err)
	}
}

func TestResolveIdentity_PointerFallback(t *testing.T) {
	a1, err := resolveIdentity("", probeA)
	if err != nil {
		t.Fatalf("resolveIdentity: %v", err)
	}
	a2, err := resolveIdentity("", probeA)
	if err != nil {
		t.Fatalf("resolveIdentity: %v", err)
	}
	if a1 != a2 {
		t.Errorf("same function resolved to different keys: %q vs %q", a1, a2)
	}

	b, err := resolveIdentity("", probeB)
	if err != nil {
		t.Fatalf("resolveIdentity: %v", err)
	}
	if a1 == b {
		t.Errorf("distinct functions resolved to the same key %q", a1)
	}

	if !strings.HasPrefix(a1, "fn:") {
		t.Errorf("fallback key %q missing fn: prefix", a1)
	}
	if !strings.Contains(a1, "probeA") {
		t.Errorf("fallback key %q missing function name", a1)
	}
}

func TestResolveIdentity_NilCallable(t *testing.T) {
	if _, err := resolveIdentity("", nil); !errors.Is(err, ErrNilCallable) {
		t.Errorf("err = %v, want ErrNilCallable", err)
	}
}
