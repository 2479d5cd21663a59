package toolregistry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gridpilot/internal/semantics"
	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

const (
	// statsAlpha is the smoothing factor of the success-rate and duration EMAs.
	statsAlpha = 0.2
	// semanticShare blends semantic score with historical success rate.
	semanticShare = 0.7
)

// DiscoverOptions tune a discovery call.
type DiscoverOptions struct {
	Limit      int
	MinScore   float64
	UseStats   bool
	Categories []string
}

// DefaultDiscoverOptions mirror the contract defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{Limit: 5, MinScore: 0.3, UseStats: true}
}

// Ranked pairs a tool with its discovery score.
type Ranked struct {
	Tool          *RegisteredTool
	Score         float64
	SemanticScore float64
}

type toolStats struct {
	successRate float64
	avgDuration float64
	samples     int
}

// Discovery maintains a reverse index tag → tool names over the registry and
// ranks tools against intent atoms. The index is rebuilt on registry change
// events.
type Discovery struct {
	registry *Registry
	logger   logging.Logger

	mu    sync.RWMutex
	index map[string][]string // tag → full names, registration order
	tags  map[string]map[string]float64
	stats map[string]*toolStats
}

// NewDiscovery builds the semantic index and subscribes to registry events so
// later (un)registrations keep the index current.
func NewDiscovery(registry *Registry, logger logging.Logger) *Discovery {
	d := &Discovery{
		registry: registry,
		logger:   logging.OrNop(logger),
		stats:    make(map[string]*toolStats),
	}
	d.rebuild()
	registry.AddEventListener(func(Event) { d.rebuild() })
	return d
}

// rebuild re-derives per-tool tags from the synonym tables and the tool's
// category, then inverts them into the tag index.
func (d *Discovery) rebuild() {
	entries := d.registry.Find(Query{})

	index := make(map[string][]string)
	tags := make(map[string]map[string]float64)
	for _, entry := range entries {
		def := entry.Definition()
		text := def.Name + " " + def.Description
		toolTags := make(map[string]float64)
		for _, tag := range semantics.TagsFor(text) {
			toolTags[tag] = semantics.TagWeight(tag)
		}
		if def.Category != "" {
			toolTags["category:"+strings.ToLower(def.Category)] = semantics.CategoryWeight
		}
		for tag := range entry.Tags {
			if _, exists := toolTags[tag]; !exists {
				toolTags[tag] = semantics.CategoryWeight
			}
		}
		tags[entry.FullName] = toolTags
		for tag := range toolTags {
			index[tag] = append(index[tag], entry.FullName)
		}
	}

	d.mu.Lock()
	d.index = index
	d.tags = tags
	d.mu.Unlock()
	d.logger.Debug("discovery index rebuilt: %d tools, %d tags", len(tags), len(index))
}

// Discover ranks enabled tools against the intent atom. Score is the
// weight-normalized tag overlap, optionally blended with the tool's
// historical success rate. Ties break by registration order.
func (d *Discovery) Discover(atom types.IntentAtom, opts DiscoverOptions) []Ranked {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	intentTags := d.intentTags(atom)
	if len(intentTags) == 0 {
		return nil
	}

	var totalWeight float64
	for _, w := range intentTags {
		totalWeight += w
	}

	categories := make(map[string]bool, len(opts.Categories))
	for _, c := range opts.Categories {
		categories[strings.ToLower(c)] = true
	}

	d.mu.RLock()
	toolTags := d.tags
	d.mu.RUnlock()

	var ranked []Ranked
	for _, entry := range d.registry.Find(Query{}) {
		if !entry.Enabled {
			continue
		}
		if len(categories) > 0 && !categories[strings.ToLower(entry.Definition().Category)] {
			continue
		}
		tags := toolTags[entry.FullName]
		var overlap float64
		for tag, intentWeight := range intentTags {
			if toolWeight, ok := tags[tag]; ok {
				overlap += intentWeight * toolWeight
			}
		}
		if overlap == 0 {
			continue
		}
		semantic := overlap / totalWeight
		score := semantic
		if opts.UseStats {
			if st := d.statsFor(entry.FullName); st != nil && st.samples > 0 {
				score = semanticShare*semantic + (1-semanticShare)*st.successRate
			}
		}
		if score < opts.MinScore {
			continue
		}
		ranked = append(ranked, Ranked{Tool: entry, Score: score, SemanticScore: semantic})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Tool.seq < ranked[j].Tool.seq
	})
	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked
}

// intentTags expands the atom into weighted tags. An explicit action/entity
// wins; raw text falls back to the synonym scan.
func (d *Discovery) intentTags(atom types.IntentAtom) map[string]float64 {
	tags := make(map[string]float64)
	if atom.Action != "" {
		tags["action:"+strings.ToLower(atom.Action)] = semantics.ActionWeight
	}
	if atom.Entity != "" {
		tags["entity:"+strings.ToLower(atom.Entity)] = semantics.EntityWeight
	}
	if atom.Domain != "" {
		tags["category:"+strings.ToLower(atom.Domain)] = semantics.CategoryWeight
	}
	if len(tags) == 0 && atom.RawText != "" {
		for _, tag := range semantics.TagsFor(atom.RawText) {
			tags[tag] = semantics.TagWeight(tag)
		}
	}
	return tags
}

// UpdateStats folds one invocation outcome into the tool's moving success
// rate and average duration.
func (d *Discovery) UpdateStats(name string, success bool, duration time.Duration) {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	millis := float64(duration.Milliseconds())

	d.mu.Lock()
	st, ok := d.stats[name]
	if !ok {
		st = &toolStats{successRate: outcome, avgDuration: millis}
		d.stats[name] = st
	} else {
		st.successRate = statsAlpha*outcome + (1-statsAlpha)*st.successRate
		st.avgDuration = statsAlpha*millis + (1-statsAlpha)*st.avgDuration
	}
	st.samples++
	d.mu.Unlock()
}

// SuccessRate returns the tool's moving success rate, with ok=false before
// any sample.
func (d *Discovery) SuccessRate(name string) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.stats[name]
	if !ok || st.samples == 0 {
		return 0, false
	}
	return st.successRate, true
}

func (d *Discovery) statsFor(name string) *toolStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats[name]
}
