package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskStore_Put(t *testing.T) {
	root := t.TempDir()
	s, err := NewDiskStore(root, "https://cdn.example.com/audio/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	url, err := s.Put(context.Background(), "u1/p4_phonics/a1.webm", []byte("audio"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "https://cdn.example.com/audio/u1/p4_phonics/a1.webm" {
		t.Errorf("unexpected url %s", url)
	}
	b, err := os.ReadFile(filepath.Join(root, "u1", "p4_phonics", "a1.webm"))
	if err != nil || string(b) != "audio" {
		t.Errorf("expected file content 'audio', got %q (%v)", b, err)
	}
}

func TestDiskStore_KeyCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	s, _ := NewDiskStore(filepath.Join(root, "audio"), "")

	url, err := s.Put(context.Background(), "../../etc/x.wav", []byte("a"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.Contains(url, "/audio/etc/x.wav") {
		t.Errorf("expected key confined to root, got %s", url)
	}
}

func TestDiskStore_CanceledContext(t *testing.T) {
	s, _ := NewDiskStore(t.TempDir(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "a.wav", []byte("a")); err == nil {
		t.Error("expected error on canceled context")
	}
}

func TestDiskStore_EmptyKey(t *testing.T) {
	s, _ := NewDiskStore(t.TempDir(), "")
	if _, err := s.Put(context.Background(), "", []byte("a")); err == nil {
		t.Error("expected error for empty key")
	}
}
