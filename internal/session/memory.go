// Package session stores per-session orchestration episodes in an in-memory
// vector collection so later turns can recall similar past requests. The
// orchestrator functions identically when no session store is attached.
package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"gridpilot/internal/shared/jsonx"
	"gridpilot/internal/shared/logging"
	"gridpilot/internal/shared/utils/id"
)

// Outcome labels an episode's end state.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Episode is one remembered orchestration turn.
type Episode struct {
	SessionID  string    `json:"session_id"`
	Request    string    `json:"request"`
	Intent     string    `json:"intent"`
	Actions    []string  `json:"actions,omitempty"`
	Result     Outcome   `json:"result"`
	DurationMS int64     `json:"duration_ms"`
	ToolsUsed  []string  `json:"tools_used,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SimilarEpisode pairs a recalled episode with its similarity score.
type SimilarEpisode struct {
	Episode    Episode `json:"episode"`
	Similarity float32 `json:"similarity"`
}

const (
	// similarityFloor filters weak recalls from LoadSimilar.
	similarityFloor = 0.7
	// embeddingDim is the hashed bag-of-words vector width.
	embeddingDim = 128
	// defaultMaxEpisodes bounds episodes kept per store.
	defaultMaxEpisodes = 100
)

// Memory is an episode store backed by a chromem collection with a local
// deterministic embedder; no network calls are involved.
type Memory struct {
	logger     logging.Logger
	collection *chromem.Collection

	mu    sync.Mutex
	ids   []string
	limit int
}

// NewMemory builds an in-memory episode store.
func NewMemory(logger logging.Logger) (*Memory, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("episodes", nil, localEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create episode collection: %w", err)
	}
	return &Memory{
		logger:     logging.OrNop(logger),
		collection: collection,
		limit:      defaultMaxEpisodes,
	}, nil
}

// SaveEpisode stores one episode, evicting the oldest past the limit.
func (m *Memory) SaveEpisode(ctx context.Context, episode Episode) error {
	if episode.Timestamp.IsZero() {
		episode.Timestamp = time.Now().UTC()
	}
	payload, err := jsonx.Marshal(episode)
	if err != nil {
		return fmt.Errorf("encode episode: %w", err)
	}
	docID := id.NewEventID()
	err = m.collection.AddDocument(ctx, chromem.Document{
		ID:      docID,
		Content: episodeText(episode),
		Metadata: map[string]string{
			"session_id": episode.SessionID,
			"payload":    string(payload),
		},
	})
	if err != nil {
		return fmt.Errorf("store episode: %w", err)
	}

	m.mu.Lock()
	m.ids = append(m.ids, docID)
	var evict string
	if len(m.ids) > m.limit {
		evict = m.ids[0]
		m.ids = m.ids[1:]
	}
	m.mu.Unlock()
	if evict != "" {
		if err := m.collection.Delete(ctx, nil, nil, evict); err != nil {
			m.logger.Warn("evict episode %s: %v", evict, err)
		}
	}
	return nil
}

// LoadSimilar recalls up to k episodes similar to the query, filtered by the
// similarity floor, best first.
func (m *Memory) LoadSimilar(ctx context.Context, query string, k int) ([]SimilarEpisode, error) {
	if k <= 0 {
		k = 3
	}
	count := m.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	results, err := m.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	var similar []SimilarEpisode
	for _, result := range results {
		if result.Similarity < similarityFloor {
			continue
		}
		var episode Episode
		if err := jsonx.Unmarshal([]byte(result.Metadata["payload"]), &episode); err != nil {
			m.logger.Warn("decode episode %s: %v", result.ID, err)
			continue
		}
		similar = append(similar, SimilarEpisode{Episode: episode, Similarity: result.Similarity})
	}
	return similar, nil
}

// Count returns stored episode count.
func (m *Memory) Count() int {
	return m.collection.Count()
}

// episodeText is the searchable rendering of an episode.
func episodeText(episode Episode) string {
	parts := []string{episode.Request, episode.Intent}
	parts = append(parts, episode.Actions...)
	return strings.Join(parts, " ")
}

// localEmbedding hashes lowercased terms into a fixed-width vector and
// normalizes it. Deterministic, so equal texts always map to equal vectors.
func localEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, term := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(term)) //nolint:errcheck // fnv never fails
		vec[h.Sum32()%embeddingDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
