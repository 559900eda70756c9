package analyzer

import "runtime"

// yieldToScheduler cooperatively gives up the processor past the
// configured depth threshold, per spec.md §5's suspension-point rule
// for long-running recursive work.
func yieldToScheduler() { runtime.Gosched() }
