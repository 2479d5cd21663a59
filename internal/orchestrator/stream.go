package orchestrator

import (
	"context"

	"gridpilot/internal/config"
	"gridpilot/internal/types"
)

// OrchestrateStream runs the pipeline while emitting typed chunks on the
// returned channel: status per phase, the parsed intent, the compiled plan,
// per-step progress, the final message, and a closing complete (or
// cancelled/error) chunk. The caller must drain the channel; delivery
// backpressures the pipeline.
func (o *Orchestrator) OrchestrateStream(ctx context.Context, req Request, opts config.Options) <-chan types.Chunk {
	out := make(chan types.Chunk, 16)
	go func() {
		defer close(out)
		result := o.run(ctx, req, opts, func(chunk types.Chunk) {
			out <- chunk
		})
		var final types.Chunk
		switch {
		case result.Cancelled:
			final = types.NewChunk(types.ChunkCancelled, 100)
		case result.Success || result.NeedsClarification:
			final = types.NewChunk(types.ChunkComplete, 100)
		default:
			final = types.NewChunk(types.ChunkError, 100)
			final.Error = result.Reply
		}
		final.Message = result.Reply
		final.Result = result.Execution
		out <- final
	}()
	return out
}
