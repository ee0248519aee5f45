package geovocab

import (
	"context"
	"runtime"
	"time"
)

// attachFinalizer arranges for Finish to be called if the caller never
// calls it. Go has no deterministic destructors, so this is the closest
// idiomatic stand-in for the C++ spec's "destructor calls finish" clause;
// unlike a destructor it cannot propagate an error to anyone, so a failure
// here is only logged, never panics or aborts the process.
func attachFinalizer(w *Writer) {
	runtime.SetFinalizer(w, func(w *Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := w.Finish(ctx); err != nil && w.log != nil {
			w.log.WithError(err).Error("geo-vocab writer finalized without an explicit Finish call")
		}
	})
}
