package sandbox

import (
	"errors"
	"testing"
)

func TestNewUnsupportedKind(t *testing.T) {
	_, err := New(Config{Kind: "vmware"})
	var kindErr *UnsupportedBackendError
	if !errors.As(err, &kindErr) {
		t.Fatalf("New() error = %v, want *UnsupportedBackendError", err)
	}
}

func TestNewRejectsBadLimitsBeforeIO(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"remote memory over cap", Config{Kind: KindRemote, MemoryLimit: "32g", Remote: RemoteConfig{BaseURL: "http://x", APIKey: "k"}}},
		{"remote disk over cap", Config{Kind: KindRemote, DiskLimit: "64g", Remote: RemoteConfig{BaseURL: "http://x", APIKey: "k"}}},
		{"malformed memory", Config{Kind: KindLocal, MemoryLimit: "plenty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			var limitErr *ResourceLimitError
			if !errors.As(err, &limitErr) {
				t.Fatalf("New() error = %v, want *ResourceLimitError", err)
			}
		})
	}
}

func TestNewRemoteRequiresCredentials(t *testing.T) {
	if _, err := New(Config{Kind: KindRemote}); err == nil {
		t.Fatal("New() error = nil, want missing endpoint error")
	}
	if _, err := New(Config{Kind: KindRemote, Remote: RemoteConfig{BaseURL: "http://x"}}); err == nil {
		t.Fatal("New() error = nil, want missing API key error")
	}
}

func TestNewRemoteReturnsRemoteBackend(t *testing.T) {
	cfg := Config{Kind: KindRemote, Remote: RemoteConfig{BaseURL: "http://localhost:1", APIKey: "k"}}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := b.(*RemoteBackend); !ok {
		t.Errorf("New() = %T, want *RemoteBackend", b)
	}
	if b.State() != StateUninitialized {
		t.Errorf("State() = %s, want uninitialized before Create", b.State())
	}
}
