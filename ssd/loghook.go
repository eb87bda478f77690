package ssd

import (
	"log"

	"github.com/sarchlab/flashsim/sim/hooking"
)

// LogHook writes a line for every block-level event of a device.
type LogHook struct {
	*log.Logger
}

// NewLogHook creates a LogHook that writes to logger.
func NewLogHook(logger *log.Logger) *LogHook {
	return &LogHook{Logger: logger}
}

// Func logs the event.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosBlockErased:
		h.Printf("erase block=%d", ctx.Item)
	case HookPosBlockCompacted:
		detail := ctx.Detail.(CompactionDetail)
		h.Printf("compact block=%d moved=%d generation=%d prev_gc=%t",
			ctx.Item, detail.Moved, detail.Generation, detail.PrevWrittenByGC)
	case HookPosPagesMoved:
		detail := ctx.Detail.(MoveDetail)
		h.Printf("move src=%d moved=%d drained=%t",
			ctx.Item, detail.Moved, detail.Drained)
	}
}
