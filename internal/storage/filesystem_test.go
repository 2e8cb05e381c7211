package storage

import (
	"context"
	"testing"
)

func TestFileStorePutAndGet(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/media")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key := SceneKey("story-1", 0, "image", "png")
	url, err := store.Put(context.Background(), key, "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if url != "http://localhost:8080/media/stories/story-1/scene-0/image.png" {
		t.Errorf("unexpected url: %s", url)
	}

	data, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("roundtrip mismatch: %q", data)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	tests := []string{"", "../outside", "a/../../b", "."}
	for _, key := range tests {
		if _, err := store.Put(context.Background(), key, "", []byte("x")); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func TestSceneKey(t *testing.T) {
	got := SceneKey("s1", 3, "audio", "mp3")
	want := "stories/s1/scene-3/audio.mp3"
	if got != want {
		t.Errorf("got %s want %s", got, want)
	}
}
