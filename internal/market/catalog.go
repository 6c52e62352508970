package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"oipulse/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// instrumentSchemaJSON 约束目录文件里每个标的条目的形状。
const instrumentSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["instrument_key", "strike_gap", "lot_size"],
  "properties": {
    "name": {"type": "string"},
    "instrument_key": {"type": "string", "minLength": 1},
    "strike_gap": {"type": "number", "exclusiveMinimum": 0},
    "lot_size": {"type": "integer", "minimum": 1},
    "expiry_weekday": {"type": "integer", "minimum": 1, "maximum": 5},
    "monthly_expiry": {"type": "boolean"},
    "strikes_around_atm": {"type": "integer", "minimum": 0}
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func instrumentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("instrument.json", strings.NewReader(instrumentSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("instrument.json")
	})
	return schemaCompiled, schemaErr
}

// CatalogFile 映射 instruments 目录文件。
type CatalogFile struct {
	Instruments map[string]Instrument `mapstructure:"instruments" yaml:"instruments"`
}

// CatalogSnapshot 公开的标的快照。
type CatalogSnapshot struct {
	Version     int64
	LoadedAt    time.Time
	Instruments map[string]Instrument
}

// ChangeListener 在目录重载时触发。
type ChangeListener func(CatalogSnapshot)

// Catalog 管理标的目录，文件变更时热重载。
type Catalog struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  CatalogSnapshot
	listeners []ChangeListener
}

// NewCatalog 读取目录文件并监听更新。重载失败保留旧快照。
func NewCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("instrument catalog requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read instrument catalog failed: %w", err)
	}
	c := &Catalog{path: path, v: v}
	if err := c.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := c.reload(); err != nil {
			logger.Errorf("标的目录重载失败，沿用旧快照: %v", err)
			return
		}
		c.notifyListeners()
	})
	v.WatchConfig()
	return c, nil
}

// Snapshot 返回当前标的集。
func (c *Catalog) Snapshot() CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneCatalogSnapshot(c.snapshot)
}

// Instrument 返回指定名称的标的。
func (c *Catalog) Instrument(name string) (Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.snapshot.Instruments[strings.ToUpper(strings.TrimSpace(name))]
	return inst, ok
}

// Names 返回按字母序排序的标的名。
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.snapshot.Instruments))
	for name := range c.snapshot.Instruments {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribe 注册目录变更回调，回调在独立 goroutine 中执行。
func (c *Catalog) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Catalog) reload() error {
	cfg, err := readCatalogFile(c.path)
	if err != nil {
		return err
	}
	instruments := make(map[string]Instrument, len(cfg.Instruments))
	for name, inst := range cfg.Instruments {
		norm := normalizeInstrument(name, inst)
		instruments[norm.Name] = norm
	}
	c.mu.Lock()
	c.snapshot = CatalogSnapshot{
		Version:     c.snapshot.Version + 1,
		LoadedAt:    time.Now(),
		Instruments: instruments,
	}
	c.mu.Unlock()
	logger.Infof("标的目录已加载 %d 个标的, 来源 %s", len(instruments), filepath.Base(c.path))
	return nil
}

func (c *Catalog) notifyListeners() {
	c.mu.RLock()
	snap := cloneCatalogSnapshot(c.snapshot)
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("catalog listener")
			cb(snap)
		}(fn)
	}
}

func cloneCatalogSnapshot(src CatalogSnapshot) CatalogSnapshot {
	dst := CatalogSnapshot{
		Version:     src.Version,
		LoadedAt:    src.LoadedAt,
		Instruments: make(map[string]Instrument, len(src.Instruments)),
	}
	for name, inst := range src.Instruments {
		dst.Instruments[name] = inst
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readCatalogFile(path string) (CatalogFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CatalogFile{}, fmt.Errorf("read instrument catalog failed: %w", err)
	}
	var rawDoc struct {
		Instruments map[string]map[string]any `yaml:"instruments"`
	}
	if err := yaml.Unmarshal(raw, &rawDoc); err != nil {
		return CatalogFile{}, fmt.Errorf("parse instrument catalog failed: %w", err)
	}
	schema, err := instrumentSchema()
	if err != nil {
		return CatalogFile{}, fmt.Errorf("compile instrument schema failed: %w", err)
	}
	for name, entry := range rawDoc.Instruments {
		jsonish, err := json.Marshal(entry)
		if err != nil {
			return CatalogFile{}, fmt.Errorf("instrument %s is not encodable: %w", name, err)
		}
		var doc any
		if err := json.Unmarshal(jsonish, &doc); err != nil {
			return CatalogFile{}, fmt.Errorf("instrument %s is not decodable: %w", name, err)
		}
		if err := schema.Validate(doc); err != nil {
			return CatalogFile{}, fmt.Errorf("instrument %s failed schema validation: %w", name, err)
		}
	}
	var cfg CatalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return CatalogFile{}, fmt.Errorf("parse instrument catalog failed: %w", err)
	}
	return cfg, nil
}
