// Package storage persists shopkeepers into a single YAML save file.
//
// Shopkeepers are serialized on the owner goroutine into a private section
// tree; encoding and the atomic file write happen on a writer goroutine. The
// write result is posted back to the owner goroutine, which then acknowledges
// the saved shopkeepers.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/events"
	"github.com/TomCreeper/Shopkeepers/internal/observability/metrics"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
)

const (
	// DataVersion is written to the root of every save file. Files without it are version 1.
	DataVersion    = 2
	DataVersionKey = "data-version"
)

var ErrUnsupportedVersion = errors.New("unsupported save data version")

type Source interface {
	All() []*shopkeeper.Shopkeeper
}

type Executor interface {
	Do(fn func())
}

// Written describes a completed save file write. Root and Data must not be modified.
type Written struct {
	Path string
	Data []byte
	Root *section.Section
	Seq  int
}

// Hook runs on the writer goroutine after each successful write.
type Hook func(w Written) error

type Config struct {
	Path           string
	SaveDelayTicks int
	Hooks          []Hook
}

type ack struct {
	sk      *shopkeeper.Shopkeeper
	version uint64
}

type job struct {
	root *section.Section
	acks []ack
}

type Storage struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	cfg     Config
	src     Source
	exec    Executor

	// Owner goroutine state.
	saved          map[int]*section.Section
	dirty          bool
	saving         bool
	saveAgain      bool
	delayedPending bool
	delayLeft      int
	closed         bool

	// Writer goroutine state.
	jobs chan job
	seq  int
	wg   sync.WaitGroup
	once sync.Once
}

var _ shopkeeper.Storage = (*Storage)(nil)

func New(log *zap.Logger, m *metrics.Metrics, cfg Config, src Source, exec Executor) *Storage {
	if cfg.SaveDelayTicks <= 0 {
		cfg.SaveDelayTicks = 1
	}
	s := &Storage{
		log:     log.Named("storage"),
		metrics: m,
		cfg:     cfg,
		src:     src,
		exec:    exec,
		saved:   map[int]*section.Section{},
		jobs:    make(chan job, 1),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s
}

func (s *Storage) Path() string { return s.cfg.Path }

// Load reads the save file. A missing file yields an empty root. The returned
// root still contains the data version key.
func (s *Storage) Load() (*section.Section, error) {
	root, err := ReadFile(s.cfg.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return section.New(), nil
		}
		return nil, err
	}
	version := root.Int(DataVersionKey, 1)
	if version > DataVersion {
		return nil, fmt.Errorf("%s: %w: %d (supported: %d)", s.cfg.Path, ErrUnsupportedVersion, version, DataVersion)
	}
	if version < DataVersion {
		s.log.Info("save file uses an older data version, it will be rewritten",
			zap.Int("version", version), zap.Int("current", DataVersion))
		s.dirty = true
	}
	for _, key := range root.Keys() {
		sec := root.Section(key)
		if sec == nil {
			continue
		}
		if id, err := strconv.Atoi(key); err == nil {
			s.saved[id] = sec
		}
	}
	return root, nil
}

// Watch drops the saved data of deleted shopkeepers and keeps the pending
// changes of unloaded ones.
func (s *Storage) Watch(bus *events.Bus) {
	bus.Subscribe(shopkeeper.EventRemoved, func(e events.Event) {
		re := e.(shopkeeper.RemovedEvent)
		sk := re.Shopkeeper
		switch re.Cause {
		case shopkeeper.RemovedDelete:
			s.Forget(sk.ID())
		case shopkeeper.RemovedUnload:
			if sk.IsDirty() || s.saved[sk.ID()] == nil {
				sec := section.New()
				sk.Serialize(sec)
				s.saved[sk.ID()] = sec
				s.dirty = true
			}
		}
	})
}

// Forget drops the saved data of shopkeeper id on the next save.
func (s *Storage) Forget(id int) {
	if _, ok := s.saved[id]; ok {
		delete(s.saved, id)
		s.dirty = true
	}
}

func (s *Storage) MarkDirty()    { s.dirty = true }
func (s *Storage) IsDirty() bool { return s.dirty }
func (s *Storage) Saving() bool  { return s.saving }

// Save writes as soon as possible. A save requested during a write runs once
// that write finished.
func (s *Storage) Save() {
	s.delayedPending = false
	s.requestSave()
}

// SaveDelayed requests a write after the configured delay. Requests made
// before that write started collapse into it.
func (s *Storage) SaveDelayed() {
	if s.delayedPending {
		return
	}
	s.delayedPending = true
	s.delayLeft = s.cfg.SaveDelayTicks
}

// Tick counts down delayed saves. Call once per owner loop tick.
func (s *Storage) Tick() {
	if !s.delayedPending {
		return
	}
	s.delayLeft--
	if s.delayLeft > 0 {
		return
	}
	s.delayedPending = false
	if s.dirty || s.anyDirty() {
		s.requestSave()
	}
}

func (s *Storage) requestSave() {
	if s.closed {
		return
	}
	if s.saving {
		s.saveAgain = true
		return
	}
	root, acks := s.snapshot()
	s.saving = true
	s.jobs <- job{root: root, acks: acks}
}

// snapshot serializes dirty shopkeepers and assembles the save tree.
// Shopkeepers that failed to load keep their saved data.
func (s *Storage) snapshot() (*section.Section, []ack) {
	var acks []ack
	for _, sk := range s.src.All() {
		if !sk.IsDirty() && s.saved[sk.ID()] != nil {
			continue
		}
		sec := section.New()
		sk.Serialize(sec)
		s.saved[sk.ID()] = sec
		acks = append(acks, ack{sk: sk, version: sk.DirtyVersion()})
	}
	ids := make([]int, 0, len(s.saved))
	for id := range s.saved {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	root := section.New()
	root.Set(DataVersionKey, DataVersion)
	for _, id := range ids {
		root.Set(strconv.Itoa(id), s.saved[id])
	}
	s.dirty = false
	return root, acks
}

func (s *Storage) anyDirty() bool {
	for _, sk := range s.src.All() {
		if sk.IsDirty() {
			return true
		}
	}
	return false
}

func (s *Storage) loop() {
	for j := range s.jobs {
		err := s.write(j.root)
		s.exec.Do(func() { s.finish(j, err) })
	}
}

func (s *Storage) write(root *section.Section) error {
	start := time.Now()
	data, err := section.Marshal(root)
	if err == nil {
		err = WriteFileAtomic(s.cfg.Path, data)
	}
	s.metrics.ObserveSave(time.Since(start), err)
	if err != nil {
		return err
	}
	s.seq++
	w := Written{Path: s.cfg.Path, Data: data, Root: root, Seq: s.seq}
	for _, h := range s.cfg.Hooks {
		if herr := h(w); herr != nil {
			s.log.Warn("save hook failed", zap.Error(herr))
		}
	}
	return nil
}

// finish runs on the owner goroutine once a write completed.
func (s *Storage) finish(j job, err error) {
	s.saving = false
	if err != nil {
		s.log.Error("could not save shopkeepers, retrying later", zap.String("path", s.cfg.Path), zap.Error(err))
		s.dirty = true
		s.SaveDelayed()
	} else {
		for _, a := range j.acks {
			a.sk.OnSaveAcknowledged(a.version)
		}
		s.log.Debug("saved shopkeepers", zap.Int("written", len(j.acks)))
	}
	if s.saveAgain {
		s.saveAgain = false
		s.requestSave()
	}
}

// Close stops the writer and writes any remaining changes synchronously.
// The owner loop must not be running anymore.
func (s *Storage) Close() error {
	var err error
	s.once.Do(func() {
		s.closed = true
		close(s.jobs)
		s.wg.Wait()
		s.saving = false
		s.saveAgain = false
		if !s.dirty && !s.anyDirty() {
			return
		}
		root, acks := s.snapshot()
		if err = s.write(root); err != nil {
			err = fmt.Errorf("final save: %w", err)
			return
		}
		for _, a := range acks {
			a.sk.OnSaveAcknowledged(a.version)
		}
	})
	return err
}

// ReadFile decodes a save file.
func ReadFile(path string) (*section.Section, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := section.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
