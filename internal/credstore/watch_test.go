package credstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReportsExternalChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan fsnotify.Op, 16)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, func(op fsnotify.Op) { changed <- op }, nil)
	}()

	// Keep writing until the watcher is attached and reports the change.
	other := NewFileStore(path)
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for seen := false; !seen; {
		select {
		case <-changed:
			seen = true
		case <-tick.C:
			require.NoError(t, other.Set(KeyAccessToken, time.Now().String()))
		case <-deadline:
			t.Fatal("watcher did not report the change")
		}
	}

	cancel()
	require.NoError(t, <-done)
}
