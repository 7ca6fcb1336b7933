package service

import "testing"

func TestHashIsDeterministicAndKeyed(t *testing.T) {
	h1 := NewSecretHasher([]byte("key-a"))
	h2 := NewSecretHasher([]byte("key-b"))

	if h1.Hash("secret") != h1.Hash("secret") {
		t.Fatal("same key and input must hash identically")
	}
	if h1.Hash("secret") == h1.Hash("secret2") {
		t.Fatal("distinct inputs collided")
	}
	if h1.Hash("secret") == h2.Hash("secret") {
		t.Fatal("distinct keys produced the same hash")
	}
}

func TestGenerateRefreshSecretIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := GenerateRefreshSecret()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if s == "" || seen[s] {
			t.Fatalf("secret %q empty or repeated", s)
		}
		seen[s] = true
	}
}
