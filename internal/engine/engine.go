// Package engine holds the live state behind the CLI and HTTP service: the
// metric catalog, the project dictionary and the registered rule sets.
package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coffersTech/redlogic/internal/metric"
	"github.com/coffersTech/redlogic/internal/pkg/filterlogic"
	"github.com/coffersTech/redlogic/internal/redcap"
	"github.com/coffersTech/redlogic/internal/registry"
	"github.com/coffersTech/redlogic/internal/rules"
)

// SnapshotReaderFunc reads a dictionary snapshot. It keeps the engine
// independent of the storage package.
type SnapshotReaderFunc func(path string) (*redcap.Dictionary, error)

// Options configures an Engine.
type Options struct {
	Catalog *metric.Catalog   // nil means metric.DefaultCatalog()
	Store   *registry.Store   // nil means a fresh store
	Logger  *zap.Logger       // nil means zap.NewNop()
	DataDir string            // cumulative stats are persisted here when set
	// Rule sets not reloaded within Retention are pruned by RunCleaner.
	Retention      time.Duration
	ReadDictionary SnapshotReaderFunc
}

// Engine is safe for concurrent use.
type Engine struct {
	catalog  *metric.Catalog
	store    *registry.Store
	logger   *zap.Logger
	dataDir  string
	readDict SnapshotReaderFunc

	Retention time.Duration

	// mu protects dict, dictPath and ruleFiles
	mu        sync.RWMutex
	dict      *redcap.Dictionary
	dictPath  string
	ruleFiles []string

	counters    counters
	globalStats PersistentStats
	statsLock   sync.Mutex // protects globalStats and the session distributions
	opCounts    map[string]int64
	actCounts   map[string]int64
}

// New creates an Engine and loads persisted stats from opts.DataDir.
func New(opts Options) *Engine {
	if opts.Catalog == nil {
		opts.Catalog = metric.DefaultCatalog()
	}
	if opts.Store == nil {
		opts.Store = registry.NewStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	e := &Engine{
		catalog:   opts.Catalog,
		store:     opts.Store,
		logger:    opts.Logger,
		dataDir:   opts.DataDir,
		readDict:  opts.ReadDictionary,
		Retention: opts.Retention,
		opCounts:  make(map[string]int64),
		actCounts: make(map[string]int64),
	}
	if e.dataDir != "" {
		e.globalStats = loadPersistentStats(e.dataDir)
	} else {
		e.globalStats = newPersistentStats()
	}
	return e
}

// Store returns the rule set registry.
func (e *Engine) Store() *registry.Store { return e.store }

// Catalog returns the metric catalog.
func (e *Engine) Catalog() *metric.Catalog { return e.catalog }

// Dictionary returns the active project dictionary, or nil.
func (e *Engine) Dictionary() *redcap.Dictionary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dict
}

// SetDictionary replaces the active dictionary.
func (e *Engine) SetDictionary(dict *redcap.Dictionary) {
	e.mu.Lock()
	e.dict = dict
	e.mu.Unlock()
}

// ParseCondition parses filter logic and records the outcome.
func (e *Engine) ParseCondition(logic string) (*filterlogic.Condition, error) {
	cond, err := filterlogic.Parse(logic)
	if err != nil {
		e.counters.parseFailures.Add(1)
		e.logger.Debug("Condition rejected", zap.String("logic", logic), zap.Error(err))
		return nil, err
	}
	e.counters.conditionsParsed.Add(1)
	e.statsLock.Lock()
	e.opCounts[cond.Op.String()]++
	e.statsLock.Unlock()
	return cond, nil
}

// BuildMetric validates a metric against the engine's catalog.
func (e *Engine) BuildMetric(action, first, second string) (*metric.Metric, error) {
	return e.recordMetric(e.catalog.New(action, first, second))
}

// ParseMetric parses a metric spec such as "RATIO(patients, studies)".
func (e *Engine) ParseMetric(spec string) (*metric.Metric, error) {
	return e.recordMetric(e.catalog.ParseSpec(spec))
}

func (e *Engine) recordMetric(m *metric.Metric, err error) (*metric.Metric, error) {
	if err != nil {
		e.counters.parseFailures.Add(1)
		return nil, err
	}
	e.counters.metricsBuilt.Add(1)
	e.statsLock.Lock()
	e.actCounts[string(m.Action)]++
	e.statsLock.Unlock()
	return m, nil
}

// ValidateRuleSet checks rs against the active dictionary. Without a
// dictionary every rule set is accepted.
func (e *Engine) ValidateRuleSet(rs *rules.RuleSet) error {
	dict := e.Dictionary()
	if dict == nil {
		return nil
	}
	return rs.Validate(dict)
}

// AddRuleSet validates rs and registers it.
func (e *Engine) AddRuleSet(rs *rules.RuleSet) error {
	if err := e.ValidateRuleSet(rs); err != nil {
		return err
	}
	e.store.Put(rs)
	e.counters.ruleSetsLoaded.Add(1)
	e.statsLock.Lock()
	for _, f := range rs.Filters {
		e.opCounts[f.Operator().String()]++
	}
	e.statsLock.Unlock()
	e.logger.Info("Rule set registered",
		zap.String("name", rs.Name),
		zap.String("source", rs.Source),
		zap.Int("rules", len(rs.Filters)))
	return nil
}

// LoadRules loads, validates and registers a rule file. The path is
// remembered for Reload.
func (e *Engine) LoadRules(path string) (*rules.RuleSet, error) {
	rs, err := rules.LoadFile(path)
	if err != nil {
		e.counters.parseFailures.Add(1)
		return nil, err
	}
	if err := e.AddRuleSet(rs); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.ruleFiles {
		if f == path {
			return rs, nil
		}
	}
	e.ruleFiles = append(e.ruleFiles, path)
	return rs, nil
}

// RuleFiles returns the rule files loaded so far.
func (e *Engine) RuleFiles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.ruleFiles))
	copy(out, e.ruleFiles)
	return out
}

// LoadDictionary reads a snapshot and makes it the active dictionary.
func (e *Engine) LoadDictionary(path string) error {
	if e.readDict == nil {
		return errors.New("engine: no dictionary reader configured")
	}
	dict, err := e.readDict(path)
	if err != nil {
		return fmt.Errorf("engine: load dictionary: %w", err)
	}

	e.mu.Lock()
	e.dict = dict
	e.dictPath = path
	e.mu.Unlock()

	e.logger.Info("Dictionary loaded",
		zap.String("path", path),
		zap.Int("fields", dict.Len()),
		zap.Int("instruments", len(dict.Instruments())))
	return nil
}

// Reload re-reads the dictionary snapshot and every known rule file.
// Failures are collected; rule sets that load keep being served.
func (e *Engine) Reload() error {
	e.mu.RLock()
	dictPath := e.dictPath
	files := make([]string, len(e.ruleFiles))
	copy(files, e.ruleFiles)
	e.mu.RUnlock()

	var errs []error
	if dictPath != "" {
		if err := e.LoadDictionary(dictPath); err != nil {
			errs = append(errs, err)
		}
	}
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := e.LoadRules(path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		e.logger.Warn("Reload finished with errors", zap.Int("errors", len(errs)))
	}
	return errors.Join(errs...)
}
