package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileProvider_Load(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 8080\n")

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, TypeFile, p.Type())

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "server:\n  port: 8080\n", string(data))
}

func TestFileProvider_Load_Missing(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Load(context.Background())
	assert.Error(t, err)
}

func TestFileProvider_Watch_SignalsOnWrite(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 8080\n")

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Watch(ctx)
	require.NoError(t, err)

	// Give the watcher time to start
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))

	select {
	case _, ok := <-ch:
		assert.True(t, ok, "expected a change signal, not a closed channel")
	case <-time.After(3 * time.Second):
		t.Fatal("expected change signal after write")
	}

	// Cancelling the context closes the channel, possibly after
	// draining a signal that was already buffered.
	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel did not close after cancel")
		}
	}
}

func TestFileProvider_Watch_AfterClose(t *testing.T) {
	path := writeTempConfig(t, "server: {}\n")

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Watch(context.Background())
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	_, err := New(ProviderConfig{Type: TypeFile})
	assert.Error(t, err, "missing path should be rejected")

	_, err = New(ProviderConfig{Type: "vault", Path: "perch/config"})
	assert.Error(t, err, "unknown type should be rejected")

	path := writeTempConfig(t, "server: {}\n")
	p, err := New(ProviderConfig{Path: path})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, TypeFile, p.Type())
}
