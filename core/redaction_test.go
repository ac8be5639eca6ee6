package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"shop":          "foo.myshopify.com",
		"session_id":    "sess_1",
		"error_code":    ServiceErrorStateMismatch,
		"access_token":  "shpat_secret",
		"client_secret": "hush",
		"code":          "auth_code",
		"hmac":          "deadbeef",
		"nested":        map[string]any{"refresh_token": "refresh", "trace_id": "trace_nested"},
		"events":        []any{map[string]any{"api_key": "key_1"}, map[string]any{"request_id": "req_1"}},
	})

	for _, key := range []string{"shop", "session_id", "error_code"} {
		if redacted[key] == RedactedValue {
			t.Fatalf("expected %s to remain visible", key)
		}
	}
	for _, key := range []string{"access_token", "client_secret", "code", "hmac"} {
		if redacted[key] != RedactedValue {
			t.Fatalf("expected %s to be redacted, got %#v", key, redacted[key])
		}
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["refresh_token"] != RedactedValue {
		t.Fatalf("expected nested refresh_token to be redacted, got %#v", nested["refresh_token"])
	}
	if nested["trace_id"] != "trace_nested" {
		t.Fatalf("expected nested trace_id to remain visible, got %#v", nested["trace_id"])
	}
	events, ok := redacted["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("expected redacted events slice")
	}
	if first, _ := events[0].(map[string]any); first["api_key"] != RedactedValue {
		t.Fatalf("expected api_key inside slice to be redacted")
	}
}

func TestRedactSensitiveMapEmpty(t *testing.T) {
	if got := RedactSensitiveMap(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty map, got %#v", got)
	}
}
