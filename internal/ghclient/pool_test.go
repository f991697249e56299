package ghclient

import "testing"

func TestPoolReusesClientPerToken(t *testing.T) {
	p := NewPool(WithRetryMax(0))

	a1, err := p.Client("token-a")
	if err != nil {
		t.Fatalf("Client() error: %v", err)
	}
	a2, _ := p.Client("token-a")
	b, _ := p.Client("token-b")

	if a1 != a2 {
		t.Error("same token should return the same client")
	}
	if a1 == b {
		t.Error("different tokens should return different clients")
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestPoolEmptyToken(t *testing.T) {
	p := NewPool()
	if _, err := p.Client(""); err == nil {
		t.Error("Client(\"\") should fail")
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestTokenKeyHidesToken(t *testing.T) {
	key := tokenKey("ghp_secret")
	if key == "ghp_secret" || len(key) != 64 {
		t.Errorf("tokenKey() = %q", key)
	}
}
