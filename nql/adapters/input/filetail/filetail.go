// Package filetail tails a log file and emits one Event per non-empty
// line (log-kind, or error-kind when the line fails to parse),
// persisting a byte-offset checkpoint so a restart resumes
// instead of re-ingesting the whole file. Checkpointing is grounded on
// the teacher's BadgerStore (datalog/storage/badger_store.go): one
// small db.View/db.Update per checkpoint read/write, BadgerDB logging
// disabled.
package filetail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-nql/nql"
)

var checkpointKey = []byte("filetail:offset")

// Tail follows a single log file, parsing each line into an Event via
// the supplied parser and delivering it to Emit.
type Tail struct {
	path   string
	parse  func(line []byte) (nql.Value, error)
	emit   nql.Handler
	origin *nql.Origin

	checkpoints *badger.DB
	pollEvery   time.Duration
}

// Config configures a Tail. CheckpointDir, if non-empty, opens a
// BadgerDB at that path to persist the file offset across restarts; an
// empty CheckpointDir disables checkpointing (every run starts at the
// file's current end).
type Config struct {
	Path          string
	CheckpointDir string
	PollEvery     time.Duration
	Parse         func(line []byte) (nql.Value, error)
}

func New(cfg Config, emit nql.Handler) (*Tail, error) {
	if cfg.Parse == nil {
		return nil, fmt.Errorf("filetail: Parse function required")
	}
	pollEvery := cfg.PollEvery
	if pollEvery <= 0 {
		pollEvery = 500 * time.Millisecond
	}

	t := &Tail{
		path:      cfg.Path,
		parse:     cfg.Parse,
		emit:      emit,
		origin:    &nql.Origin{Name: "filetail:" + cfg.Path},
		pollEvery: pollEvery,
	}

	if cfg.CheckpointDir != "" {
		opts := badger.DefaultOptions(cfg.CheckpointDir)
		opts.Logger = nil
		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("filetail: open checkpoint store: %w", err)
		}
		t.checkpoints = db
	}

	return t, nil
}

func (t *Tail) Close() error {
	if t.checkpoints != nil {
		return t.checkpoints.Close()
	}
	return nil
}

// Run polls the file for new lines until ctx is cancelled.
func (t *Tail) Run(ctx context.Context) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("filetail: open %s: %w", t.path, err)
	}
	defer f.Close()

	offset, err := t.loadOffset()
	if err != nil {
		return err
	}
	if offset == 0 {
		if fi, statErr := f.Stat(); statErr == nil {
			offset = fi.Size()
		}
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("filetail: seek %s: %w", t.path, err)
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(t.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.drain(reader, &offset); err != nil {
				return err
			}
		}
	}
}

func (t *Tail) drain(reader *bufio.Reader, offset *int64) error {
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			*offset += int64(len(line))
			trimmed := line
			if trimmed[len(trimmed)-1] == '\n' {
				trimmed = trimmed[:len(trimmed)-1]
			}
			if len(trimmed) > 0 {
				t.emitLine(trimmed)
			}
			if saveErr := t.saveOffset(*offset); saveErr != nil {
				return saveErr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("filetail: read %s: %w", t.path, err)
		}
	}
}

func (t *Tail) emitLine(line []byte) {
	payload, err := t.parse(line)
	if err != nil {
		t.emit(nql.NewEvent(nql.KindError, uint64(time.Now().UnixNano()), t.origin,
			nql.NewObject(map[string]nql.Value{
				"error": nql.NewString(err.Error()),
				"line":  nql.NewString(string(line)),
			})))
		return
	}
	t.emit(nql.NewEvent(nql.KindLog, uint64(time.Now().UnixNano()), t.origin, payload))
}

func (t *Tail) loadOffset() (int64, error) {
	if t.checkpoints == nil {
		return 0, nil
	}
	var offset int64
	err := t.checkpoints.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			offset = decodeOffset(val)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("filetail: load checkpoint: %w", err)
	}
	return offset, nil
}

func (t *Tail) saveOffset(offset int64) error {
	if t.checkpoints == nil {
		return nil
	}
	err := t.checkpoints.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey, encodeOffset(offset))
	})
	if err != nil {
		return fmt.Errorf("filetail: save checkpoint: %w", err)
	}
	return nil
}

func encodeOffset(offset int64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(offset >> (8 * i))
	}
	return buf
}

func decodeOffset(buf []byte) int64 {
	var offset int64
	for i := 0; i < len(buf) && i < 8; i++ {
		offset |= int64(buf[i]) << (8 * i)
	}
	return offset
}
