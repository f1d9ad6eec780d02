package persist

import (
	"context"
	"testing"
	"time"

	"pkt.systems/webmux/schema"
)

func TestWatchReportsSavedProfile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := store.Save("default", Blob{ActiveSessionID: "term-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case profile, ok := <-changes:
			if !ok {
				t.Fatalf("watch channel closed early")
			}
			if profile == schema.ProfileID("default") {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change notification")
		}
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	changes, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			// A buffered notification may still drain; the channel must
			// close shortly after.
			select {
			case _, ok := <-changes:
				if ok {
					t.Fatalf("expected channel close after cancel")
				}
			case <-time.After(3 * time.Second):
				t.Fatalf("timed out waiting for close")
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for close")
	}
}
