package redis

import "testing"

func TestKeyBuilders(t *testing.T) {
	t.Parallel()

	client := &Client{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"cart", client.CartKey("session-1"), "sf:cart:session-1"},
		{"identity token", client.IdentityTokenKey("session-1"), "sf:identity:token:session-1"},
		{"identity user", client.IdentityUserKey("session-1"), "sf:identity:user:session-1"},
		{"idempotency", client.IdempotencyKey("scope-a", "key-1"), "sf:idempotency:scope-a:key-1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s key: expected %q got %q", tt.name, tt.want, tt.got)
		}
	}
}

func TestBuildKeySkipsEmptyParts(t *testing.T) {
	t.Parallel()

	client := &Client{}
	if got := client.buildKey("cart", "", "session-1"); got != "sf:cart:session-1" {
		t.Fatalf("empty parts must be skipped, got %q", got)
	}
	if got := client.buildKey(); got != "sf" {
		t.Fatalf("expected bare namespace, got %q", got)
	}
}
