package artifact

import (
	"strings"
	"testing"
	"time"
)

func TestCaptureKey(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	key := CaptureKey("https://example.com", "png", at)

	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		t.Fatalf("Expected 4 key segments, got %q", key)
	}
	if parts[0] != "visdiff" || parts[1] != "capture" {
		t.Errorf("Expected visdiff/capture prefix, got %q", key)
	}
	if len(parts[2]) != 16 {
		t.Errorf("Expected 16 character URL hash, got %q", parts[2])
	}
	if parts[3] != "20240102030405.png" {
		t.Errorf("Expected timestamped file name, got %q", parts[3])
	}

	if key != CaptureKey("https://example.com", "png", at) {
		t.Errorf("Expected identical inputs to produce identical keys")
	}
	if CaptureKey("https://example.org", "png", at) == key {
		t.Errorf("Expected different URLs to produce different keys")
	}
}

func TestDiffKey_OrderMatters(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	ab := DiffKey("https://a.example", "https://b.example", "png", at)
	ba := DiffKey("https://b.example", "https://a.example", "png", at)

	if ab == ba {
		t.Errorf("Expected swapped pair to produce a different key")
	}
	if !strings.HasPrefix(ab, "visdiff/diff/") {
		t.Errorf("Expected visdiff/diff prefix, got %q", ab)
	}
	if !strings.HasSuffix(ab, "/20240102030405.png") {
		t.Errorf("Expected timestamped png file name, got %q", ab)
	}
}
