package daemon

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sipflow/internal/capture"
	"firestige.xyz/sipflow/internal/config"
	"firestige.xyz/sipflow/internal/options"
)

const dump = `U 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060
INVITE sip:bob@example.com SIP/2.0.
Call-ID: one@10.0.0.1.
From: <sip:alice@example.com>.
CSeq: 1 INVITE.
#
U 2024/01/01 10:00:01.000001 10.0.0.1:5060 -> 10.0.0.2:5060
OPTIONS sip:bob@example.com SIP/2.0.
Call-ID: ping@10.0.0.1.
CSeq: 1 OPTIONS.
#
U 2024/01/01 10:00:02.000001 10.0.0.2:5060 -> 10.0.0.1:5060
SIP/2.0 200 OK.
Call-ID: one@10.0.0.1.
CSeq: 1 INVITE.
`

func twoColumns(opts *options.Store) {
	opts.SetInt("cl.columns", 2)
	opts.Set("cl.column0", "callid")
	opts.SetInt("cl.column0.width", 8)
	opts.Set("cl.column1", "msgcnt")
	opts.SetInt("cl.column1.width", 4)
}

// blockingSource never yields a record and ends when cancelled.
type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (capture.Record, error) {
	<-ctx.Done()
	return capture.Record{}, ctx.Err()
}

func (blockingSource) Close() error { return nil }

func TestDaemon_RunUntilDrained(t *testing.T) {
	opts := options.Defaults()
	twoColumns(opts)
	opts.Ignore("starting", "OPTIONS")

	pidFile := filepath.Join(t.TempDir(), "sipflow.pid")
	var out bytes.Buffer
	d := New(config.Default(), opts, capture.NewTextSource(strings.NewReader(dump)), "ngrep", Options{
		PIDFile:  pidFile,
		Interval: time.Hour,
		Out:      &out,
	})

	require.NoError(t, d.Start())
	_, err := os.Stat(pidFile)
	require.NoError(t, err, "PID file written on start")

	require.NoError(t, d.Run())

	assert.Equal(t, 2, d.Store().Count())
	assert.Equal(t, 2, d.Store().FindByCallID("one").MessageCount())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Idx   Call-ID  Msgs", lines[0])
	assert.Equal(t, "1     one      2", lines[1])
	assert.Equal(t, "Calls: 2 (1 shown)", lines[2])

	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err), "PID file removed on stop")

	d.Stop() // second stop is a no-op
}

func TestDaemon_AutoscrollOff(t *testing.T) {
	opts := options.Defaults()
	twoColumns(opts)
	opts.Set("cl.autoscroll", "off")

	var out bytes.Buffer
	d := New(config.Default(), opts, capture.NewTextSource(strings.NewReader(dump)), "ngrep", Options{Out: &out})
	require.NoError(t, d.Start())
	require.NoError(t, d.Run())

	assert.Equal(t, "Idx   Call-ID  Msgs\nCalls: 2 (2 shown)\n", out.String())
}

func TestDaemon_Shutdown(t *testing.T) {
	d := New(config.Default(), options.Defaults(), blockingSource{}, "test", Options{Out: io.Discard})
	require.NoError(t, d.Start())

	done := make(chan error, 1)
	go func() { done <- d.Run() }()
	d.Shutdown()

	select {
	case err := <-done:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestDaemon_BadLayout(t *testing.T) {
	opts := options.Defaults()
	opts.Set("cl.column0", "nonsense")

	d := New(config.Default(), opts, blockingSource{}, "test", Options{Out: io.Discard})
	assert.Error(t, d.Start())
	d.Stop()
}

func TestDaemon_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	write := func(content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("sipflow:\n  filter:\n    enabled: false\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	opts, err := options.FromConfig(cfg)
	require.NoError(t, err)

	d := New(cfg, opts, blockingSource{}, "test", Options{ConfigPath: path, Out: io.Discard})
	defer d.Stop()

	write("sipflow:\n  filter:\n    enabled: true\n    sipfrom: alice\n  ignore:\n    method:\n      - BYE\n")
	require.NoError(t, d.Reload())

	assert.True(t, opts.IsEnabled(options.KeyFilterEnable))
	assert.Equal(t, "alice", opts.Value(options.KeyFilterSIPFrom))
	assert.True(t, opts.IsIgnored("method", "BYE"))

	write("sipflow:\n  log:\n    level: loud\n")
	assert.Error(t, d.Reload())
	assert.True(t, opts.IsEnabled(options.KeyFilterEnable), "failed reload keeps settings")

	write("sipflow:\n  filter:\n    enabled: true\n")
	require.NoError(t, d.Reload())
	assert.Empty(t, opts.Value(options.KeyFilterSIPFrom), "removed filter is cleared")
}

func TestDaemon_ReloadKeepsRCFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	rc := filepath.Join(dir, "sipflowrc")
	require.NoError(t, os.WriteFile(rc, []byte("set filter.sipto bob\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("sipflow:\n  filter:\n    sipto: carol\n"), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Capture.RCFiles = append(cfg.Capture.RCFiles, rc)
	opts, err := options.FromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "bob", opts.Value(options.KeyFilterSIPTo))

	d := New(cfg, opts, blockingSource{}, "test", Options{ConfigPath: path, Out: io.Discard})
	defer d.Stop()

	require.NoError(t, d.Reload())
	assert.Equal(t, "bob", opts.Value(options.KeyFilterSIPTo), "rc file still wins after reload")
}

func TestDaemon_ToggleCapture(t *testing.T) {
	opts := options.Defaults()
	d := New(config.Default(), opts, blockingSource{}, "test", Options{Out: io.Discard})
	defer d.Stop()

	d.ToggleCapture()
	assert.True(t, opts.IsDisabled(options.KeyCapture))
	_, err := d.Store().AcceptMessage(
		"U 2024/01/01 10:00:00.000001 10.0.0.1:5060 -> 10.0.0.2:5060",
		"INVITE sip:bob@example.com SIP/2.0\nCall-ID: paused\nCSeq: 1 INVITE\n",
	)
	assert.Error(t, err)
	assert.Equal(t, 0, d.Store().Count())

	d.ToggleCapture()
	assert.True(t, opts.IsEnabled(options.KeyCapture))
}

func TestDaemon_ClearCalls(t *testing.T) {
	opts := options.Defaults()
	twoColumns(opts)
	var out bytes.Buffer
	src := capture.NewTextSource(strings.NewReader(dump))
	d := New(config.Default(), opts, src, "test", Options{Interval: time.Hour, Out: &out})

	require.NoError(t, d.Start())
	require.NoError(t, d.Run())
	require.Equal(t, 2, d.Store().Count())

	d.ClearCalls()
	assert.Equal(t, 0, d.Store().Count())
	assert.Empty(t, d.list.Rows)
	assert.Zero(t, d.printed)
}

func TestDaemon_ReloadWithoutConfig(t *testing.T) {
	d := New(config.Default(), options.Defaults(), blockingSource{}, "test", Options{Out: io.Discard})
	defer d.Stop()
	assert.Error(t, d.Reload())
}
