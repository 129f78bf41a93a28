package agent

import (
	"encoding/json"
	"fmt"
)

// loopWindow is how many recent call signatures a task keeps for loop
// detection. With a window of 4 the oldest==newest check catches a call
// recurring after up to two other calls (A-B-C-A), and the consecutive
// check catches A-A-A repetition, so a loop is caught within at most 4
// calls.
const loopWindow = 4

// consecutiveLimit is how many identical signatures in a row count as a
// loop on their own.
const consecutiveLimit = 3

// LoopDetector watches the sequence of (tool, args) signatures within a
// single task and reports when the task has stopped making progress.
type LoopDetector struct {
	window []string
}

// NewLoopDetector returns an empty detector.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{window: make([]string, 0, loopWindow)}
}

// Observe records one call signature and reports whether it completes a
// loop pattern. Callers should check the result before executing the call:
// a detected loop means the call must not run.
func (d *LoopDetector) Observe(tool string, args map[string]any) bool {
	sig := Signature(tool, args)
	d.window = append(d.window, sig)
	if len(d.window) > loopWindow {
		d.window = d.window[1:]
	}

	if len(d.window) == loopWindow && d.window[0] == d.window[loopWindow-1] {
		return true
	}

	return d.consecutiveRun() >= consecutiveLimit
}

// Last returns the most recent signature, or "" if none was observed.
func (d *LoopDetector) Last() string {
	if len(d.window) == 0 {
		return ""
	}
	return d.window[len(d.window)-1]
}

func (d *LoopDetector) consecutiveRun() int {
	if len(d.window) == 0 {
		return 0
	}
	last := d.window[len(d.window)-1]
	run := 0
	for i := len(d.window) - 1; i >= 0; i-- {
		if d.window[i] != last {
			break
		}
		run++
	}
	return run
}

// Signature produces a canonical string for one tool call. Map keys are
// sorted by encoding/json, so argument order never changes the signature.
func Signature(tool string, args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", args))
	}
	return tool + "|" + string(raw)
}
