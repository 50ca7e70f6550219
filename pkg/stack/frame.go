// Package stack turns goroutine call stacks into root-first location traces.
package stack

import (
	"runtime"

	"github.com/google/pprof/profile"
)

// Frame is one activation record: the qualified symbol executing and its
// current position. It is a read-only snapshot and is not retained by the
// walker.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Frames yields activation records starting at the innermost frame and
// following caller links outward. ok is false once no frame remains.
type Frames interface {
	Next() (frame Frame, ok bool)
}

type runtimeFrames struct {
	frames *runtime.Frames
	done   bool
}

// CallersFrames adapts program counters returned by runtime.Callers.
// Inlined calls are expanded into their own frames.
func CallersFrames(pcs []uintptr) Frames {
	return &runtimeFrames{frames: runtime.CallersFrames(pcs)}
}

func (r *runtimeFrames) Next() (Frame, bool) {
	if r.done {
		return Frame{}, false
	}
	f, more := r.frames.Next()
	if !more {
		r.done = true
	}
	if f.PC == 0 && f.Function == "" {
		return Frame{}, false
	}
	return Frame{Function: f.Function, File: f.File, Line: f.Line}, true
}

type sliceFrames struct {
	frames []Frame
	pos    int
}

// SliceFrames iterates frames already ordered innermost-first.
func SliceFrames(frames []Frame) Frames {
	return &sliceFrames{frames: frames}
}

func (s *sliceFrames) Next() (Frame, bool) {
	if s.pos >= len(s.frames) {
		return Frame{}, false
	}
	f := s.frames[s.pos]
	s.pos++
	return f, true
}

type profileFrames struct {
	locs []*profile.Location
	loc  int
	line int
}

// ProfileFrames iterates the stack of one pprof sample. pprof stores the leaf
// location first and, inside a location, the inlined callee before its
// caller, so the natural order is already innermost-first.
func ProfileFrames(s *profile.Sample) Frames {
	if s == nil {
		return &profileFrames{}
	}
	return &profileFrames{locs: s.Location}
}

func (p *profileFrames) Next() (Frame, bool) {
	for p.loc < len(p.locs) {
		loc := p.locs[p.loc]
		if loc == nil {
			p.loc++
			continue
		}
		// Unsymbolized locations still count as one frame.
		if len(loc.Line) == 0 {
			p.loc++
			return Frame{}, true
		}
		if p.line >= len(loc.Line) {
			p.loc++
			p.line = 0
			continue
		}
		ln := loc.Line[p.line]
		p.line++
		f := Frame{Line: int(ln.Line)}
		if ln.Function != nil {
			f.Function = ln.Function.Name
			f.File = ln.Function.Filename
		}
		return f, true
	}
	return Frame{}, false
}
