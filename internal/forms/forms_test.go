package forms

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestMessageInputNormalize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		field   string
	}{
		{"trims", "  hello \n", "hello", ""},
		{"empty", "", "", "content"},
		{"whitespace only", " \t\n ", "", "content"},
		{"at limit", strings.Repeat("a", MaxMessageLength), strings.Repeat("a", MaxMessageLength), ""},
		{"over limit", strings.Repeat("a", MaxMessageLength+1), "", "content"},
		{"multibyte at limit", strings.Repeat("가", MaxMessageLength), strings.Repeat("가", MaxMessageLength), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := MessageInput{Content: tt.content}
			err := in.Normalize()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if in.Content != tt.want {
					t.Errorf("content = %q, want %q", in.Content, tt.want)
				}
				return
			}

			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if _, ok := fe.Fields[tt.field]; !ok {
				t.Errorf("expected field %q in %v", tt.field, fe.Fields)
			}
		})
	}
}

func TestJoinInputUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"alice", true},
		{"bob_99", true},
		{"a-b", true},
		{"ab", false},
		{"Alice", false},
		{"has space", false},
		{strings.Repeat("x", 31), false},
	}

	for _, tt := range tests {
		in := JoinInput{Name: "Someone", Username: tt.username}
		err := in.Normalize()
		if tt.valid && err != nil {
			t.Errorf("%q: unexpected error %v", tt.username, err)
		}
		if !tt.valid && !IsError(err) {
			t.Errorf("%q: expected validation error, got %v", tt.username, err)
		}
	}
}

func TestSettingsInputDefaults(t *testing.T) {
	in := SettingsInput{Name: " Alice "}
	if err := in.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Name != "Alice" {
		t.Errorf("name = %q", in.Name)
	}
	if in.Role != "developer" {
		t.Errorf("role = %q, want developer", in.Role)
	}

	bad := SettingsInput{Name: "Alice", Role: "wizard", Bio: strings.Repeat("b", 1001)}
	err := bad.Normalize()
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if _, ok := fe.Fields["role"]; !ok {
		t.Errorf("missing role error: %v", fe.Fields)
	}
	if _, ok := fe.Fields["bio"]; !ok {
		t.Errorf("missing bio error: %v", fe.Fields)
	}
}

func TestNewDirectMessage(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()

	dm, err := NewDirectMessage(alice, bob, " hello ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dm.Content != "hello" {
		t.Errorf("content = %q", dm.Content)
	}

	if _, err := NewDirectMessage(alice, alice, "hi"); !IsError(err) {
		t.Errorf("self message: expected validation error, got %v", err)
	}
	if _, err := NewDirectMessage(uuid.Nil, bob, "hi"); !IsError(err) {
		t.Errorf("nil sender: expected validation error, got %v", err)
	}
	if _, err := NewDirectMessage(alice, bob, ""); !IsError(err) {
		t.Errorf("empty content: expected validation error, got %v", err)
	}
}
