package types

import "time"

// ChunkType enumerates the typed chunks of a streaming orchestration.
type ChunkType string

const (
	ChunkStatus       ChunkType = "status"
	ChunkThinking     ChunkType = "thinking"
	ChunkIntent       ChunkType = "intent"
	ChunkPlan         ChunkType = "plan"
	ChunkStepStart    ChunkType = "step:start"
	ChunkStepProgress ChunkType = "step:progress"
	ChunkStepDone     ChunkType = "step:done"
	ChunkStepError    ChunkType = "step:error"
	ChunkStepRecovery ChunkType = "step:recovery"
	ChunkMessage      ChunkType = "message"
	ChunkComplete     ChunkType = "complete"
	ChunkError        ChunkType = "error"
	ChunkCancelled    ChunkType = "cancelled"
)

// Chunk is one element of the orchestration event stream. Progress is
// monotonic within a run; the wire format is JSON when crossing a process
// boundary.
type Chunk struct {
	Type        ChunkType        `json:"type"`
	TimestampMS int64            `json:"timestamp"`
	Progress    int              `json:"progress"`
	Message     string           `json:"message,omitempty"`
	StepID      string           `json:"step_id,omitempty"`
	Output      string           `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
	Intent      *IntentSpec      `json:"intent,omitempty"`
	Plan        *ExecutionPlan   `json:"plan,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
}

// NewChunk stamps a chunk with the current UTC time in milliseconds.
func NewChunk(kind ChunkType, progress int) Chunk {
	return Chunk{Type: kind, TimestampMS: time.Now().UTC().UnixMilli(), Progress: progress}
}
