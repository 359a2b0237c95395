package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestKeySet(t *testing.T) {
	ks, err := NewKeySet([]string{
		"ci:" + HashAPIKey("sk-ci"),
		HashAPIKey("sk-anon"),
		"  ",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ks.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ks.Len())
	}

	key, err := ks.Validate("sk-ci")
	if err != nil || key.Name != "ci" {
		t.Errorf("Validate(sk-ci) = %v, %v", key, err)
	}
	key, err = ks.Validate("sk-anon")
	if err != nil || key.Name != "key-"+HashAPIKey("sk-anon")[:8] {
		t.Errorf("Validate(sk-anon) = %v, %v", key, err)
	}
	if _, err := ks.Validate("sk-wrong"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("wrong key err = %v", err)
	}
	if _, err := ks.Validate(""); !errors.Is(err, ErrMissingKey) {
		t.Errorf("empty key err = %v", err)
	}
}

func TestNewKeySet_RejectsMalformedHash(t *testing.T) {
	for _, entry := range []string{"short", "ci:" + HashAPIKey("x")[:60] + "zzzz"} {
		if _, err := NewKeySet([]string{entry}); err == nil {
			t.Errorf("NewKeySet(%q) succeeded", entry)
		}
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer sk-1", want: "sk-1"},
		{header: "bearer sk-2", want: "sk-2"},
		{header: "", wantErr: true},
		{header: "sk-3", wantErr: true},
		{header: "Basic abc", wantErr: true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("POST", "/chat", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, err := ExtractAPIKey(r)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ExtractAPIKey(%q) = %q, %v", tt.header, got, err)
		}
	}
}
