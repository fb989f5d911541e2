package packet

import (
	"reflect"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	p := New("alice", "samcore", "helloWorld", nil)

	if p.Sender != "alice" {
		t.Fatalf("Sender should be alice, not %s", p.Sender)
	}
	if p.Receiver != "samcore" {
		t.Fatalf("Receiver should be samcore, not %s", p.Receiver)
	}
	if p.APICall != "helloWorld" {
		t.Fatalf("APICall should be helloWorld, not %s", p.APICall)
	}
	if !p.Status {
		t.Fatalf("Status should default to true")
	}
	if p.ErrorMessage != false {
		t.Fatalf("ErrorMessage should default to false, not %v", p.ErrorMessage)
	}
	if p.Args == nil {
		t.Fatalf("Args should never be nil")
	}
	if p.ReturnCode != nil {
		t.Fatalf("ReturnCode should default to nil")
	}
}

func TestCheckArgs(t *testing.T) {
	p := New("alice", "samcore", "helloWorld", map[string]interface{}{
		"text": "there",
	})

	if !CheckArgs(p, []string{"text"}) {
		t.Fatalf("CheckArgs should accept present fields")
	}
	if !p.Status {
		t.Fatalf("CheckArgs should not touch Status on success")
	}

	if CheckArgs(p, []string{"text", "name"}) {
		t.Fatalf("CheckArgs should reject missing fields")
	}
	if p.Status {
		t.Fatalf("CheckArgs should set Status to false on failure")
	}
	if p.ErrorText() != "name argument not included!" {
		t.Fatalf("unexpected error message: %v", p.ErrorMessage)
	}
}

func TestSetError(t *testing.T) {
	p := New("alice", "bob", "slow", nil)

	p.SetError("boom")

	if p.Status {
		t.Fatalf("SetError should flip Status")
	}
	if p.ErrorText() != "boom" {
		t.Fatalf("ErrorText should be boom, not %q", p.ErrorText())
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      string
		expected Key
	}{
		{
			key:      "samcore.nodeInit",
			expected: Key{Node: "samcore", API: "nodeInit"},
		},
		{
			key:      "bob.slow",
			expected: Key{Node: "bob", API: "slow"},
		},
		{
			key: "bob.slow.return.alice.1234",
			expected: Key{
				Node:   "bob",
				API:    "slow",
				Return: true,
				Sender: "alice",
				Code:   1234,
			},
		},
	}

	for _, tt := range tests {
		parsed, err := ParseKey(tt.key)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", tt.key, err)
		}
		if !reflect.DeepEqual(parsed, tt.expected) {
			t.Fatalf("ParseKey(%q) should be %+v, not %+v", tt.key, tt.expected, parsed)
		}
		if parsed.String() != tt.key {
			t.Fatalf("String() should round-trip %q, not %q", tt.key, parsed.String())
		}
	}
}

func TestParseKeyMalformed(t *testing.T) {
	for _, key := range []string{
		"",
		"samcore",
		"a.b.c",
		"bob.slow.return.alice",
		"bob.slow.return.alice.notanumber",
		"bob.slow.notreturn.alice.12",
	} {
		if _, err := ParseKey(key); err == nil {
			t.Fatalf("ParseKey(%q) should generate an error", key)
		}
	}
}

func TestReturnKey(t *testing.T) {
	key := ReturnKey("bob", "slow", "alice", 42)
	if key != "bob.slow.return.alice.42" {
		t.Fatalf("unexpected return key %q", key)
	}
}
