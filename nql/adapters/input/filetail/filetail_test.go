package filetail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-nql/nql"
)

func TestEncodeDecodeOffset_RoundTrip(t *testing.T) {
	for _, want := range []int64{0, 1, 255, 65536, 1 << 40} {
		got := decodeOffset(encodeOffset(want))
		assert.Equal(t, want, got)
	}
}

func TestNew_RequiresParse(t *testing.T) {
	_, err := New(Config{Path: "doesnotmatter"}, func(*nql.Event) {})
	assert.Error(t, err)
}

func jsonParse(line []byte) (nql.Value, error) {
	return nql.ParsePayload(line)
}

func TestRun_EmitsLinesAppendedAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"seed":true}`+"\n"), 0644))

	events := make(chan *nql.Event, 10)
	tail, err := New(Config{
		Path:      path,
		PollEvery: 10 * time.Millisecond,
		Parse:     jsonParse,
	}, func(e *nql.Event) { events <- e })
	require.NoError(t, err)
	defer tail.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tail.Run(ctx)

	// No checkpoint dir means the tail starts at the file's current
	// size, skipping the seed line already on disk.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"level":"error"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-events:
		assert.Equal(t, nql.KindLog, ev.Kind)
		level, ok := ev.Payload.Get("level")
		require.True(t, ok)
		s, _ := level.AsString()
		assert.Equal(t, "error", s)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tailed line")
	}
}

func TestRun_ParseErrorEmitsErrorEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	events := make(chan *nql.Event, 10)
	tail, err := New(Config{
		Path:      path,
		PollEvery: 10 * time.Millisecond,
		Parse:     jsonParse,
	}, func(e *nql.Event) { events <- e })
	require.NoError(t, err)
	defer tail.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tail.Run(ctx)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("not json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-events:
		assert.Equal(t, nql.KindError, ev.Kind)
		_, ok := ev.Payload.Get("error")
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for parse-error event")
	}
}

func TestRun_PersistsOffsetCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))
	checkpointDir := filepath.Join(dir, "checkpoint")

	events := make(chan *nql.Event, 10)
	tail, err := New(Config{
		Path:          path,
		CheckpointDir: checkpointDir,
		PollEvery:     10 * time.Millisecond,
		Parse:         jsonParse,
	}, func(e *nql.Event) { events <- e })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go tail.Run(ctx)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"n":1}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first line")
	}

	cancel()
	require.NoError(t, tail.Close())

	offset, err := reopenOffset(t, checkpointDir)
	require.NoError(t, err)
	assert.Greater(t, offset, int64(0))
}

func reopenOffset(t *testing.T, checkpointDir string) (int64, error) {
	t.Helper()
	tail, err := New(Config{
		Path:          filepath.Join(checkpointDir, ".."), // unused, Run is never called
		CheckpointDir: checkpointDir,
		Parse:         jsonParse,
	}, func(*nql.Event) {})
	if err != nil {
		return 0, err
	}
	defer tail.Close()
	return tail.loadOffset()
}
