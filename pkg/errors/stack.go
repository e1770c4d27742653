package errors

import (
	"fmt"
	"runtime"
)

type stack []uintptr

func callers() *stack {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

func (s *stack) fullStack() []string {
	frames := runtime.CallersFrames(*s)
	stacks := make([]string, 0, len(*s))
	for {
		frame, more := frames.Next()
		stacks = append(stacks, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return stacks
}

// rateLimitKey picks the reporter-facing frame used to group repeated errors.
func rateLimitKey(stacks []string) string {
	if len(stacks) > 2 {
		return stacks[2]
	}
	if len(stacks) > 0 {
		return stacks[len(stacks)-1]
	}
	return "unknown"
}
