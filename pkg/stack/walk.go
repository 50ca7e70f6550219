package stack

import (
	"runtime"
	"slices"
	"strings"
)

// maxDepth bounds Capture; deeper stacks are truncated at the root side.
const maxDepth = 128

// Trace is a call stack ordered root-first: the oldest caller comes first and
// the frame executing when the sample was taken comes last.
type Trace []Location

// String renders the trace in folded form, "a;b;c".
func (t Trace) String() string {
	parts := make([]string, len(t))
	for i, loc := range t {
		parts[i] = loc.String()
	}
	return strings.Join(parts, ";")
}

// Leaf returns the innermost location.
func (t Trace) Leaf() (Location, bool) {
	if len(t) == 0 {
		return Location{}, false
	}
	return t[len(t)-1], true
}

// Walk locates every frame from the innermost one to the root and returns
// them root-first. Frames are only read.
func Walk(frames Frames) Trace {
	return WalkInto(nil, frames)
}

// WalkInto is Walk reusing dst's backing array.
func WalkInto(dst Trace, frames Frames) Trace {
	dst = dst[:0]
	for {
		f, ok := frames.Next()
		if !ok {
			break
		}
		dst = append(dst, Locate(f))
	}
	slices.Reverse(dst)
	return dst
}

// Capture walks the calling goroutine's stack. skip 0 makes the caller of
// Capture the leaf.
func Capture(skip int) Trace {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	return Walk(CallersFrames(pcs[:n]))
}
