package textutil

import "testing"

func TestNormalizeStringMap(t *testing.T) {
	got := NormalizeStringMap(map[string]string{
		" name ": " Amal ",
		"":       "dropped",
		"email":  "amal@example.lk",
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if got["name"] != "Amal" {
		t.Fatalf("expected trimmed value, got %q", got["name"])
	}
	if NormalizeStringMap(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestLastValues(t *testing.T) {
	got := LastValues(map[string][]string{
		"displayName": {"off", "on"},
		"empty":       {},
		"message":     {" hello "},
	})
	if got["displayName"] != "on" {
		t.Fatalf("expected last value to win, got %q", got["displayName"])
	}
	if _, ok := got["empty"]; ok {
		t.Fatalf("expected keys without values to be dropped")
	}
	if got["message"] != "hello" {
		t.Fatalf("expected trimmed message, got %q", got["message"])
	}
}
