package output

import (
	"encoding/json"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wbrown/janus-nql/nql"
)

// File writes each event as a JSON line to a rotating log file via
// lumberjack, which handles size-based rotation and retention.
type File struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// FileConfig mirrors lumberjack's rotation knobs directly; zero values
// fall back to lumberjack's own defaults except MaxSize, which
// lumberjack otherwise leaves unbounded.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func NewFile(cfg FileConfig) *File {
	maxSize := cfg.MaxSizeMB
	if maxSize == 0 {
		maxSize = 100
	}
	return &File{
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
}

func (f *File) Handle(event *nql.Event) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	data = append(data, '\n')
	f.out.Write(data)
}

func (f *File) Close() error {
	return f.out.Close()
}
