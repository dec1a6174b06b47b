package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventSink receives a mirror copy of every journal record, typically the
// sqlite store's event table.
type EventSink interface {
	AppendEvent(ctx context.Context, kind, payload string) error
}

// Journal appends newline-delimited JSON trade records to trades.jsonl under
// the configured directory. Safe for concurrent use.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	sink EventSink
	log  *zap.Logger
	now  func() time.Time
}

func New(dir string, sink EventSink, log *zap.Logger) *Journal {
	return &Journal{
		path: filepath.Join(dir, "trades.jsonl"),
		sink: sink,
		log:  log,
		now:  time.Now,
	}
}

// Record stamps the entry and appends it. Write failures are logged, never
// propagated; a journaling hiccup must not stop the strategy.
func (j *Journal) Record(event map[string]any) {
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["timestamp"] = j.now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		j.log.Warn("journal marshal failed", zap.Error(err))
		return
	}
	if err := j.append(data); err != nil {
		j.log.Warn("journal append failed", zap.Error(err))
	}
	if j.sink != nil {
		kind, _ := event["event"].(string)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := j.sink.AppendEvent(ctx, kind, string(data)); err != nil {
			j.log.Warn("journal mirror failed", zap.Error(err))
		}
	}
}

func (j *Journal) append(data []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.ensureOpenLocked(); err != nil {
		return err
	}
	if _, err := j.w.Write(data); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	// Flush per record so tailers see fills as they happen.
	return j.w.Flush()
}

func (j *Journal) ensureOpenLocked() error {
	if j.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.w = bufio.NewWriter(f)
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	if err := j.w.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	err := j.file.Close()
	j.file = nil
	j.w = nil
	return err
}
