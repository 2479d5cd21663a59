package executor

import (
	"context"

	"gridpilot/internal/types"
)

// ExecuteStream runs the plan while translating lifecycle events into typed
// chunks on the returned channel. Step outcomes are identical to Execute;
// only the reporting surface differs. The channel closes after the final
// complete (or cancelled) chunk.
func (e *Executor) ExecuteStream(ctx context.Context, plan *types.ExecutionPlan, opts Options) <-chan types.Chunk {
	out := make(chan types.Chunk, 16)

	userEvent := opts.OnEvent
	opts.OnEvent = func(event Event) {
		if userEvent != nil {
			userEvent(event)
		}
		if chunk, ok := ChunkForEvent(event); ok {
			out <- chunk
		}
	}

	go func() {
		defer close(out)
		result := e.Execute(ctx, plan, opts)
		if result.Cancelled {
			chunk := types.NewChunk(types.ChunkCancelled, 100)
			chunk.Result = result
			out <- chunk
		}
	}()
	return out
}

// ChunkForEvent maps executor events onto stream chunks. Batch boundaries
// have no chunk equivalent and are dropped.
func ChunkForEvent(event Event) (types.Chunk, bool) {
	var kind types.ChunkType
	switch event.Kind {
	case EventStepStart:
		kind = types.ChunkStepStart
	case EventStepComplete:
		kind = types.ChunkStepDone
	case EventStepError:
		kind = types.ChunkStepError
	case EventStepRecovery:
		kind = types.ChunkStepRecovery
	case EventStepSkip:
		kind = types.ChunkStepProgress
	case EventComplete:
		kind = types.ChunkComplete
	default:
		return types.Chunk{}, false
	}

	progress := 0
	if event.Kind == EventComplete {
		progress = 100
	}
	chunk := types.NewChunk(kind, progress)
	chunk.StepID = event.StepID
	chunk.Output = event.Output
	chunk.Error = event.Error
	chunk.Message = event.Reason
	chunk.Result = event.Result
	return chunk, true
}
