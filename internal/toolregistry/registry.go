// Package toolregistry stores the tool catalog and ranks tools against
// intent atoms. It is the only process-global of the core; the tool map and
// listener list are mutex-protected, tool invocations are not serialized.
package toolregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

// ToolStatus tracks a registered tool's lifecycle state.
type ToolStatus string

const (
	StatusActive       ToolStatus = "active"
	StatusDeprecated   ToolStatus = "deprecated"
	StatusExperimental ToolStatus = "experimental"
)

// RegisteredTool wraps a Tool with registry bookkeeping. FullName is
// "<namespace>.<name>" when a namespace was given, the bare name otherwise.
type RegisteredTool struct {
	Tool        types.Tool
	FullName    string
	Namespace   string
	Group       string
	Tags        map[string]bool
	Enabled     bool
	Status      ToolStatus
	Replacement string
	UsageCount  int64
	LastUsedAt  time.Time

	// registration sequence, used as the deterministic tiebreaker in
	// discovery ranking.
	seq int64
}

// Definition returns the wrapped tool's static metadata.
func (r *RegisteredTool) Definition() types.ToolDefinition {
	return r.Tool.Definition()
}

// EventType enumerates registry change events.
type EventType string

const (
	EventRegistered   EventType = "registered"
	EventUnregistered EventType = "unregistered"
	EventEnabled      EventType = "enabled"
	EventDisabled     EventType = "disabled"
	EventDeprecated   EventType = "deprecated"
)

// Event describes one registry mutation.
type Event struct {
	Type      EventType `json:"type"`
	ToolName  string    `json:"tool_name"`
	Timestamp time.Time `json:"timestamp"`
}

// EventListener receives registry change events.
type EventListener func(Event)

// RegisterOptions configure a registration.
type RegisterOptions struct {
	Namespace string
	Group     string
	Tags      []string
	Status    ToolStatus
	Disabled  bool
	Overwrite bool
}

// Query filters the catalog; zero fields match everything.
type Query struct {
	NameSubstring string
	Category      string
	Group         string
	Tags          []string
}

// Statistics summarizes the catalog.
type Statistics struct {
	Total      int              `json:"total"`
	Enabled    int              `json:"enabled"`
	Disabled   int              `json:"disabled"`
	Deprecated int              `json:"deprecated"`
	Categories map[string]int   `json:"categories"`
	TopUsed    []ToolUsageEntry `json:"top_used"`
}

// ToolUsageEntry pairs a tool name with its usage count.
type ToolUsageEntry struct {
	Name       string `json:"name"`
	UsageCount int64  `json:"usage_count"`
}

// HealthReport is the result of a registry health check.
type HealthReport struct {
	Healthy  bool     `json:"healthy"`
	Warnings []string `json:"warnings,omitempty"`
}

// Registry is the mutex-guarded tool catalog.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*RegisteredTool
	listeners []EventListener
	seq       int64
	logger    logging.Logger

	searchCache *searchCache
}

// New creates an empty registry.
func New(logger logging.Logger) *Registry {
	return &Registry{
		tools:       make(map[string]*RegisteredTool),
		logger:      logging.OrNop(logger),
		searchCache: newSearchCache(0),
	}
}

// Register adds a tool to the catalog. Duplicate names fail unless
// opts.Overwrite is set.
func (r *Registry) Register(tool types.Tool, opts RegisterOptions) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	def := tool.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	fullName := def.Name
	if opts.Namespace != "" {
		fullName = opts.Namespace + "." + def.Name
	}

	r.mu.Lock()
	if _, exists := r.tools[fullName]; exists && !opts.Overwrite {
		r.mu.Unlock()
		return fmt.Errorf("tool already exists: %s", fullName)
	}
	status := opts.Status
	if status == "" {
		status = StatusActive
	}
	tags := make(map[string]bool, len(opts.Tags))
	for _, tag := range opts.Tags {
		tags[tag] = true
	}
	r.seq++
	r.tools[fullName] = &RegisteredTool{
		Tool:      tool,
		FullName:  fullName,
		Namespace: opts.Namespace,
		Group:     opts.Group,
		Tags:      tags,
		Enabled:   !opts.Disabled,
		Status:    status,
		seq:       r.seq,
	}
	r.searchCache.purge()
	r.mu.Unlock()

	r.logger.Debug("registered tool %s (group=%s)", fullName, opts.Group)
	r.emit(EventRegistered, fullName)
	return nil
}

// RegisterAll registers every tool with the same options, stopping at the
// first failure.
func (r *Registry) RegisterAll(tools []types.Tool, opts RegisterOptions) error {
	for _, tool := range tools {
		if err := r.Register(tool, opts); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a tool by (fully-qualified) name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	if _, exists := r.tools[name]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("tool not found: %s", name)
	}
	delete(r.tools, name)
	r.searchCache.purge()
	r.mu.Unlock()

	r.emit(EventUnregistered, name)
	return nil
}

// UnregisterWhere removes every tool matching the predicate and returns how
// many were removed.
func (r *Registry) UnregisterWhere(predicate func(*RegisteredTool) bool) int {
	r.mu.Lock()
	var removed []string
	for name, tool := range r.tools {
		if predicate(tool) {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		delete(r.tools, name)
	}
	if len(removed) > 0 {
		r.searchCache.purge()
	}
	r.mu.Unlock()

	for _, name := range removed {
		r.emit(EventUnregistered, name)
	}
	return len(removed)
}

// Get returns an enabled tool by name. Disabled tools are invisible to Get;
// use Has to test bare presence.
func (r *Registry) Get(name string) (types.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok || !entry.Enabled {
		return nil, false
	}
	return entry.Tool, true
}

// Entry returns the full registration record, enabled or not.
func (r *Registry) Entry(name string) (*RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry, ok
}

// Has reports presence regardless of enablement.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Enable re-enables a tool.
func (r *Registry) Enable(name string) error {
	if err := r.setEnabled(name, true); err != nil {
		return err
	}
	r.emit(EventEnabled, name)
	return nil
}

// Disable hides a tool from Get without unregistering it.
func (r *Registry) Disable(name string) error {
	if err := r.setEnabled(name, false); err != nil {
		return err
	}
	r.emit(EventDisabled, name)
	return nil
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	entry.Enabled = enabled
	r.searchCache.purge()
	return nil
}

// Deprecate marks a tool deprecated, optionally naming a replacement.
func (r *Registry) Deprecate(name, replacement string) error {
	r.mu.Lock()
	entry, ok := r.tools[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("tool not found: %s", name)
	}
	entry.Status = StatusDeprecated
	entry.Replacement = replacement
	r.mu.Unlock()

	r.emit(EventDeprecated, name)
	return nil
}

// RecordUsage bumps a tool's usage counter and last-used timestamp.
func (r *Registry) RecordUsage(name string) {
	r.mu.Lock()
	if entry, ok := r.tools[name]; ok {
		entry.UsageCount++
		entry.LastUsedAt = time.Now()
	}
	r.mu.Unlock()
}

// Names returns every registered (fully-qualified) name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Find returns the tools matching the query, in registration order.
func (r *Registry) Find(q Query) []*RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*RegisteredTool
	for _, entry := range r.tools {
		if q.NameSubstring != "" && !strings.Contains(entry.FullName, q.NameSubstring) {
			continue
		}
		if q.Category != "" && entry.Definition().Category != q.Category {
			continue
		}
		if q.Group != "" && entry.Group != q.Group {
			continue
		}
		if !hasAllTags(entry, q.Tags) {
			continue
		}
		matched = append(matched, entry)
	}
	sortBySeq(matched)
	return matched
}

// Search matches free text against tool names and descriptions,
// case-insensitively. Results are cached until the next registry mutation.
func (r *Registry) Search(text string) []*RegisteredTool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if cached, ok := r.searchCache.get(normalized); ok {
		return r.resolve(cached)
	}

	r.mu.RLock()
	var matched []*RegisteredTool
	for _, entry := range r.tools {
		def := entry.Definition()
		if strings.Contains(strings.ToLower(def.Name), normalized) ||
			strings.Contains(strings.ToLower(def.Description), normalized) {
			matched = append(matched, entry)
		}
	}
	r.mu.RUnlock()

	sortBySeq(matched)
	names := make([]string, len(matched))
	for i, entry := range matched {
		names[i] = entry.FullName
	}
	r.searchCache.put(normalized, names)
	return matched
}

func (r *Registry) resolve(names []string) []*RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved := make([]*RegisteredTool, 0, len(names))
	for _, name := range names {
		if entry, ok := r.tools[name]; ok {
			resolved = append(resolved, entry)
		}
	}
	return resolved
}

// Statistics summarizes the catalog state.
func (r *Registry) Statistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{Categories: make(map[string]int)}
	var used []ToolUsageEntry
	for _, entry := range r.tools {
		stats.Total++
		if entry.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		if entry.Status == StatusDeprecated {
			stats.Deprecated++
		}
		if cat := entry.Definition().Category; cat != "" {
			stats.Categories[cat]++
		}
		if entry.UsageCount > 0 {
			used = append(used, ToolUsageEntry{Name: entry.FullName, UsageCount: entry.UsageCount})
		}
	}
	sort.Slice(used, func(i, j int) bool {
		if used[i].UsageCount != used[j].UsageCount {
			return used[i].UsageCount > used[j].UsageCount
		}
		return used[i].Name < used[j].Name
	})
	if len(used) > 10 {
		used = used[:10]
	}
	stats.TopUsed = used
	return stats
}

// HealthCheck flags an empty catalog, all-disabled catalogs and deprecated
// tools without a replacement.
func (r *Registry) HealthCheck() HealthReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := HealthReport{Healthy: true}
	if len(r.tools) == 0 {
		return HealthReport{Healthy: false, Warnings: []string{"registry is empty"}}
	}
	enabled := 0
	for _, entry := range r.tools {
		if entry.Enabled {
			enabled++
		}
		if entry.Status == StatusDeprecated && entry.Replacement == "" {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("deprecated tool %s has no replacement", entry.FullName))
		}
	}
	if enabled == 0 {
		report.Healthy = false
		report.Warnings = append(report.Warnings, "all tools are disabled")
	}
	sort.Strings(report.Warnings)
	return report
}

// AddEventListener subscribes to registry change events.
func (r *Registry) AddEventListener(listener EventListener) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, listener)
	r.mu.Unlock()
}

func (r *Registry) emit(kind EventType, name string) {
	r.mu.RLock()
	listeners := make([]EventListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	event := Event{Type: kind, ToolName: name, Timestamp: time.Now()}
	for _, listener := range listeners {
		listener(event)
	}
}

func hasAllTags(entry *RegisteredTool, tags []string) bool {
	for _, tag := range tags {
		if !entry.Tags[tag] {
			return false
		}
	}
	return true
}

func sortBySeq(entries []*RegisteredTool) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
}
