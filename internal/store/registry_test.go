package store

import (
	"testing"

	"github.com/chtzvt/rewardd/internal/secrets"
)

func TestRegisterAndForName(t *testing.T) {
	// Dummy factory for testing
	dummyFactory := func(opts map[string]interface{}, s *secrets.Store) (Store, error) {
		return nil, nil
	}
	Register("dummy", dummyFactory)

	got, ok := ForName("dummy")
	if !ok {
		t.Fatal("Expected to find registered store, got none")
	}
	if got == nil {
		t.Fatal("Expected non-nil factory")
	}

	_, ok = ForName("not-exist")
	if ok {
		t.Fatal("Did not expect to find unregistered store")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New("no-such-backend", nil, nil)
	if err == nil {
		t.Fatal("Expected error for unknown backend")
	}
}

func TestBuiltinBackendsRegistered(t *testing.T) {
	for _, name := range []string{"s3", "azureblob", "disk"} {
		if _, ok := ForName(name); !ok {
			t.Errorf("Expected builtin backend %q to be registered", name)
		}
	}
}
