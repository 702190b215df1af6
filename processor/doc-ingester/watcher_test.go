package docingester

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("policy.pdf"))
	assert.True(t, isPDF("POLICY.PDF"))
	assert.False(t, isPDF("policy.pdf.tmp"))
	assert.False(t, isPDF("notes.txt"))
	assert.False(t, isPDF("pdf"))
}

func TestConfigGetSettleDelay(t *testing.T) {
	tests := []struct {
		name   string
		delay  string
		expect time.Duration
	}{
		{name: "valid duration", delay: "500ms", expect: 500 * time.Millisecond},
		{name: "empty uses default", delay: "", expect: 2 * time.Second},
		{name: "invalid uses default", delay: "soon", expect: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{SettleDelay: tt.delay}
			assert.Equal(t, tt.expect, cfg.GetSettleDelay())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.InboxDir = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Product = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SettleDelay = "whenever"
	assert.Error(t, cfg.Validate())
}

func TestInboxWatcherEmitsSettledPDF(t *testing.T) {
	tmpDir := t.TempDir()
	watcher, err := NewInboxWatcher(tmpDir, 100*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	path := filepath.Join(tmpDir, "policy.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 test"), 0644))

	select {
	case event := <-watcher.Events():
		assert.Equal(t, path, event.Path)
		assert.Equal(t, "policy.pdf", event.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("expected inbox event for settled PDF")
	}
}

func TestInboxWatcherIgnoresNonPDF(t *testing.T) {
	tmpDir := t.TempDir()
	watcher, err := NewInboxWatcher(tmpDir, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "readme.txt"), []byte("not a pdf"), 0644))

	select {
	case event := <-watcher.Events():
		t.Fatalf("unexpected event for %s", event.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestInboxWatcherSuppressesUnchangedContent(t *testing.T) {
	tmpDir := t.TempDir()
	watcher, err := NewInboxWatcher(tmpDir, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	path := filepath.Join(tmpDir, "quote.pdf")
	content := []byte("%PDF-1.7 quote")
	require.NoError(t, os.WriteFile(path, content, 0644))

	select {
	case <-watcher.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("expected first inbox event")
	}

	// Touching the file with identical content must not re-emit.
	require.NoError(t, os.WriteFile(path, content, 0644))
	select {
	case event := <-watcher.Events():
		t.Fatalf("unexpected duplicate event for %s", event.Path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestScanExistingQueuesPresentPDFs(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "existing.pdf"), []byte("%PDF-1.7"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "skip.txt"), []byte("x"), 0644))

	watcher, err := NewInboxWatcher(tmpDir, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	require.NoError(t, watcher.ScanExisting())

	select {
	case event := <-watcher.Events():
		assert.Equal(t, "existing.pdf", event.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("expected event for pre-existing PDF")
	}
}
