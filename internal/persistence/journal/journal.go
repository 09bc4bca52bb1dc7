// Package journal records shopkeeper lifecycle events as compressed JSONL,
// one file per hour.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/events"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
)

type Entry struct {
	Time     time.Time `json:"time"`
	Event    string    `json:"event"`
	Cause    string    `json:"cause,omitempty"`
	ID       int       `json:"id,omitempty"`
	UniqueID string    `json:"unique_id,omitempty"`
	Type     string    `json:"type"`
	Object   string    `json:"object"`
	World    string    `json:"world"`
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Z        int       `json:"z"`
	Name     string    `json:"name,omitempty"`
	Creator  string    `json:"creator,omitempty"`
}

// EntryOf converts a shopkeeper event. Create events are only journaled when
// they were vetoed; successful creations show up as added events.
func EntryOf(e events.Event, now time.Time) (Entry, bool) {
	var (
		sk    *shopkeeper.Shopkeeper
		cause string
	)
	switch ev := e.(type) {
	case shopkeeper.AddedEvent:
		sk, cause = ev.Shopkeeper, ev.Cause.String()
	case shopkeeper.RemovedEvent:
		sk, cause = ev.Shopkeeper, ev.Cause.String()
	case shopkeeper.ActivatedEvent:
		sk = ev.Shopkeeper
	case shopkeeper.DeactivatedEvent:
		sk = ev.Shopkeeper
	case *shopkeeper.CreateEvent:
		if !ev.Cancelled() {
			return Entry{}, false
		}
		d := ev.Data
		out := Entry{
			Time:  now.UTC(),
			Event: ev.Name(),
			Cause: "vetoed",
			World: d.Location.World,
			X:     d.Location.X,
			Y:     d.Location.Y,
			Z:     d.Location.Z,
			Name:  d.Name,
		}
		if d.ShopType != nil {
			out.Type = d.ShopType.ID
		}
		if d.ObjectType != nil {
			out.Object = d.ObjectType.ID
		}
		if d.Creator != nil {
			out.Creator = d.Creator.Name()
		}
		return out, true
	default:
		return Entry{}, false
	}
	return Entry{
		Time:     now.UTC(),
		Event:    e.Name(),
		Cause:    cause,
		ID:       sk.ID(),
		UniqueID: sk.UniqueID().String(),
		Type:     sk.Type().ID,
		Object:   sk.ShopObject().Type().ID,
		World:    sk.WorldName(),
		X:        sk.X(),
		Y:        sk.Y(),
		Z:        sk.Z(),
		Name:     sk.Name(),
	}, true
}

// HourlyWriter appends JSON lines to zstd compressed files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst. It is safe for concurrent use.
type HourlyWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewHourlyWriter(baseDir, prefix string) *HourlyWriter {
	return &HourlyWriter{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (w *HourlyWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the current zstd frame.
func (w *HourlyWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *HourlyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *HourlyWriter) PathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

func (w *HourlyWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *HourlyWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

// ReadFile decodes a journal file. Appending after a rotation yields several
// concatenated zstd streams, which the decoder reads back to back.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	jd := json.NewDecoder(dec)
	for {
		var e Entry
		if err := jd.Decode(&e); err == io.EOF {
			return out, nil
		} else if err != nil {
			return out, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, e)
	}
}

// Journal writes entries from a background goroutine. Record never blocks the
// tick loop; entries are dropped when the queue is full.
type Journal struct {
	log *zap.Logger
	w   *HourlyWriter
	now func() time.Time

	// mu guards closing ch against concurrent Record calls.
	mu      sync.RWMutex
	closed  bool
	ch      chan Entry
	done    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64
}

func New(log *zap.Logger, dir string) *Journal {
	j := &Journal{
		log:  log.Named("journal"),
		w:    NewHourlyWriter(dir, "shopkeepers"),
		now:  time.Now,
		ch:   make(chan Entry, 1024),
		done: make(chan struct{}),
	}
	go j.loop()
	return j
}

// Watch journals every shopkeeper lifecycle event fired on bus.
func (j *Journal) Watch(bus *events.Bus) {
	bus.SubscribeAll(func(e events.Event) {
		if entry, ok := EntryOf(e, j.now()); ok {
			j.Record(entry)
		}
	})
}

func (j *Journal) Record(e Entry) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- e:
	default:
		j.dropped.Add(1)
	}
}

type Stats struct {
	Written uint64
	Dropped uint64
}

func (j *Journal) Stats() Stats {
	return Stats{Written: j.written.Load(), Dropped: j.dropped.Load()}
}

func (j *Journal) loop() {
	defer close(j.done)
	for e := range j.ch {
		if err := j.w.Write(e); err != nil {
			j.log.Warn("could not write journal entry", zap.String("event", e.Event), zap.Error(err))
			continue
		}
		j.written.Add(1)
		if len(j.ch) == 0 {
			if err := j.w.Flush(); err != nil {
				j.log.Warn("could not flush journal", zap.Error(err))
			}
		}
	}
}

// Close drains queued entries and closes the current file.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	<-j.done
	return j.w.Close()
}
