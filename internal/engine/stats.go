package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
)

type counters struct {
	conditionsParsed atomic.Int64
	metricsBuilt     atomic.Int64
	parseFailures    atomic.Int64
	ruleSetsLoaded   atomic.Int64
}

// PersistentStats holds cumulative statistics that survive restarts.
type PersistentStats struct {
	ConditionsParsed int64            `json:"conditions_parsed"`
	MetricsBuilt     int64            `json:"metrics_built"`
	ParseFailures    int64            `json:"parse_failures"`
	RuleSetsLoaded   int64            `json:"rule_sets_loaded"`
	OperatorCounts   map[string]int64 `json:"operator_counts"` // operator token -> count
	ActionCounts     map[string]int64 `json:"action_counts"`   // metric action -> count
}

// SystemStats is the stats API response.
type SystemStats struct {
	ConditionsParsed int64            `json:"conditions_parsed"`
	MetricsBuilt     int64            `json:"metrics_built"`
	ParseFailures    int64            `json:"parse_failures"`
	RuleSetsLoaded   int64            `json:"rule_sets_loaded"`
	RuleSets         int              `json:"rule_sets"`
	DictionaryFields int              `json:"dictionary_fields"`
	OperatorDist     map[string]int64 `json:"operator_dist"`
	ActionDist       map[string]int64 `json:"action_dist"`
}

// statsFileName is the filename for persisted stats
const statsFileName = ".redlogic.stats"

func newPersistentStats() PersistentStats {
	return PersistentStats{
		OperatorCounts: make(map[string]int64),
		ActionCounts:   make(map[string]int64),
	}
}

// loadPersistentStats reads stats from disk. Missing or corrupt files
// yield empty stats.
func loadPersistentStats(dataDir string) PersistentStats {
	stats := newPersistentStats()

	data, err := os.ReadFile(filepath.Join(dataDir, statsFileName))
	if err != nil {
		return stats
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return newPersistentStats()
	}

	if stats.OperatorCounts == nil {
		stats.OperatorCounts = make(map[string]int64)
	}
	if stats.ActionCounts == nil {
		stats.ActionCounts = make(map[string]int64)
	}
	return stats
}

// savePersistentStats writes stats to disk atomically.
func savePersistentStats(dataDir string, stats PersistentStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dataDir, statsFileName)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// totals merges persisted stats with this process's counters.
func (e *Engine) totals() PersistentStats {
	e.statsLock.Lock()
	defer e.statsLock.Unlock()

	t := newPersistentStats()
	t.ConditionsParsed = e.globalStats.ConditionsParsed + e.counters.conditionsParsed.Load()
	t.MetricsBuilt = e.globalStats.MetricsBuilt + e.counters.metricsBuilt.Load()
	t.ParseFailures = e.globalStats.ParseFailures + e.counters.parseFailures.Load()
	t.RuleSetsLoaded = e.globalStats.RuleSetsLoaded + e.counters.ruleSetsLoaded.Load()
	for _, m := range []map[string]int64{e.globalStats.OperatorCounts, e.opCounts} {
		for k, v := range m {
			t.OperatorCounts[k] += v
		}
	}
	for _, m := range []map[string]int64{e.globalStats.ActionCounts, e.actCounts} {
		for k, v := range m {
			t.ActionCounts[k] += v
		}
	}
	return t
}

// Stats returns cumulative counters plus the current registry size.
func (e *Engine) Stats() SystemStats {
	t := e.totals()
	stats := SystemStats{
		ConditionsParsed: t.ConditionsParsed,
		MetricsBuilt:     t.MetricsBuilt,
		ParseFailures:    t.ParseFailures,
		RuleSetsLoaded:   t.RuleSetsLoaded,
		RuleSets:         e.store.Len(),
		OperatorDist:     t.OperatorCounts,
		ActionDist:       t.ActionCounts,
	}
	if dict := e.Dictionary(); dict != nil {
		stats.DictionaryFields = dict.Len()
	}
	return stats
}

// SaveStats persists cumulative stats to the data directory. It is a no-op
// without one.
func (e *Engine) SaveStats() error {
	if e.dataDir == "" {
		return nil
	}
	return savePersistentStats(e.dataDir, e.totals())
}
