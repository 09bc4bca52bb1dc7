// Package app wires the shopkeeper station: settings, worlds, object and shop
// types, the registry, storage and its side outputs.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/citizens"
	"github.com/TomCreeper/Shopkeepers/internal/events"
	"github.com/TomCreeper/Shopkeepers/internal/observability/metrics"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/backup"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/indexdb"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/journal"
	"github.com/TomCreeper/Shopkeepers/internal/persistence/storage"
	"github.com/TomCreeper/Shopkeepers/internal/registry"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/admin"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/book"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject/citizen"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject/sign"
	"github.com/TomCreeper/Shopkeepers/internal/sim/loop"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/transport/feed"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

type WorldConfig struct {
	Name string `mapstructure:"name"`
	Seed int64  `mapstructure:"seed"`
	// SpawnRadius is the radius in chunks loaded around 0,0 at startup.
	SpawnRadius int `mapstructure:"spawn_radius"`
}

type Config struct {
	DataDir      string        `mapstructure:"data_dir"`
	SettingsPath string        `mapstructure:"settings"`
	Worlds       []WorldConfig `mapstructure:"worlds"`
	DisableIndex bool          `mapstructure:"disable_index"`
	Journal      bool          `mapstructure:"journal"`
}

func (c Config) SavePath() string   { return filepath.Join(c.DataDir, "save.yml") }
func (c Config) BackupDir() string  { return filepath.Join(c.DataDir, "backups") }
func (c Config) IndexPath() string  { return filepath.Join(c.DataDir, "index.sqlite") }
func (c Config) JournalDir() string { return filepath.Join(c.DataDir, "journal") }

// Station owns every component. Apart from construction and shutdown, all
// state is touched on the loop goroutine only.
type Station struct {
	Log      *zap.Logger
	Settings *settings.Settings
	Loop     *loop.Loop
	Worlds   *world.Worlds
	NPCs     *citizens.Manager
	Objects  *shopobject.Registry
	Types    *shopkeeper.ShopTypes
	Registry *registry.Registry
	Storage  *storage.Storage
	Events   *events.Bus
	Metrics  *metrics.Metrics
	Feed     *feed.Server
	Index    *indexdb.SQLiteIndex
	Journal  *journal.Journal
	Env      *shopkeeper.Env

	LoadReport registry.LoadReport
}

// New builds the station and loads the saved shopkeepers. The loop is not
// started yet.
func New(log *zap.Logger, reg prometheus.Registerer, cfg Config) (*Station, error) {
	st, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	s := &Station{
		Log:      log,
		Settings: &st,
		Loop:     loop.New(st.TickRateHz, 0),
		Worlds:   world.NewWorlds(),
		Objects:  shopobject.NewRegistry(),
		Types:    shopkeeper.NewShopTypes(),
		Events:   events.NewBus(),
		Metrics:  metrics.New(reg),
	}
	s.NPCs = citizens.New(log.Named("citizens"), s.Worlds)
	s.NPCs.Enable(st.EnableCitizenShops)

	s.Objects.Register(sign.NewType(log.Named("sign"), s.Worlds, s.Settings))
	s.Objects.Register(citizen.NewType(log.Named("citizen"), s.NPCs, s.Settings))
	s.Types.Register(book.NewType(s.Settings))
	s.Types.Register(admin.NewType(s.Settings))

	s.Env = &shopkeeper.Env{
		Log:      log.Named("shopkeeper"),
		Settings: s.Settings,
		Worlds:   s.Worlds,
		Objects:  s.Objects,
		Events:   s.Events,
		UI:       ui.NewManager(),
		Metrics:  s.Metrics,
	}
	s.Registry = registry.New(s.Env, s.Types, s.Metrics)
	s.Env.Registry = s.Registry

	hooks := []storage.Hook{s.backupHook(cfg.BackupDir())}
	if !cfg.DisableIndex {
		idx, err := indexdb.OpenSQLite(cfg.IndexPath())
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		s.Index = idx
		hooks = append(hooks, func(w storage.Written) error {
			idx.Replace(w.Seq, w.Path, indexdb.RowsFromSave(w.Root))
			return nil
		})
	}
	s.Storage = storage.New(log, s.Metrics, storage.Config{
		Path:           cfg.SavePath(),
		SaveDelayTicks: st.SaveDelayTicks,
		Hooks:          hooks,
	}, s.Registry, s.Loop)
	s.Env.Storage = s.Storage
	s.Storage.Watch(s.Events)

	s.Feed = feed.NewServer(log, s.Metrics)
	s.Feed.Watch(s.Events)
	if cfg.Journal {
		s.Journal = journal.New(log, cfg.JournalDir())
		s.Journal.Watch(s.Events)
	}

	s.Worlds.AddListener(s.Registry)
	worlds := cfg.Worlds
	if len(worlds) == 0 {
		worlds = []WorldConfig{{Name: "world", Seed: 1, SpawnRadius: 2}}
	}
	for _, wc := range worlds {
		w := s.Worlds.Load(wc.Name, world.DefaultGen(wc.Seed))
		if wc.SpawnRadius > 0 {
			w.LoadArea(world.Vec3i{}, wc.SpawnRadius)
		}
	}

	if err := s.load(); err != nil {
		_ = s.Storage.Close()
		s.closeOutputs()
		return nil, err
	}

	check := uint64(st.CheckEveryTicks)
	s.Loop.OnTick(func(tick uint64) {
		s.Storage.Tick()
		if check > 0 && tick%check == 0 {
			s.Registry.CheckActive()
		}
	})
	return s, nil
}

func (s *Station) load() error {
	root, err := s.Storage.Load()
	if err != nil {
		return fmt.Errorf("load shopkeepers: %w", err)
	}
	s.LoadReport = s.Registry.LoadAll(root)
	removed := s.NPCs.CleanupUnusedTraits(func(id int) bool {
		_, ok := s.Registry.ByID(id)
		return ok
	})
	if removed > 0 {
		s.Log.Info("removed unused shopkeeper traits", zap.Int("count", removed))
	}
	if s.LoadReport.Dirty > 0 {
		s.Storage.Save()
	}
	return nil
}

func (s *Station) backupHook(dir string) storage.Hook {
	every := s.Settings.BackupEvery
	keep := s.Settings.BackupKeep
	return func(w storage.Written) error {
		if every <= 0 || w.Seq%every != 0 {
			return nil
		}
		path, err := backup.Write(dir, w.Data, storage.DataVersion, time.Now())
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		if keep > 0 {
			if _, err := backup.Prune(dir, keep); err != nil {
				return fmt.Errorf("prune backups: %w", err)
			}
		}
		s.Log.Debug("wrote backup", zap.String("path", path))
		return nil
	}
}

// Run drives the tick loop until ctx is cancelled or Stop is called.
func (s *Station) Run(ctx context.Context) error {
	err := s.Loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown must be called after Run returned. It unloads all shopkeepers and
// writes pending changes.
func (s *Station) Shutdown() error {
	s.Loop.Stop()
	s.Registry.UnloadAll()
	err := s.Storage.Close()
	if err != nil {
		s.Log.Error("could not save shopkeepers on shutdown", zap.Error(err))
	}
	s.closeOutputs()
	return err
}

func (s *Station) closeOutputs() {
	s.Feed.Close()
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			s.Log.Warn("close journal", zap.Error(err))
		}
	}
	if s.Index != nil {
		if err := s.Index.Close(); err != nil {
			s.Log.Warn("close index", zap.Error(err))
		}
	}
}
