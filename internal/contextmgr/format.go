package contextmgr

import (
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf8"
)

// maxSequenceElements is how many leading elements of a sequence-valued
// output are kept verbatim.
const maxSequenceElements = 20

// FormatOutput renders a tool output as a string bounded by maxTokens.
//
// Sequence-valued outputs keep their first elements plus an explicit total
// count, so the oracle knows data was elided rather than absent. Oversized
// text keeps its head and tail with a marker in between: the head usually
// carries structure (field names, result shape) and the tail carries
// totals and summaries, while the middle is bulk repetition.
func FormatOutput(value any, maxTokens int) string {
	text := renderValue(value)
	return TruncateText(text, maxTokens)
}

// TruncateText bounds a string to maxTokens, keeping the first and last
// 40% of the character budget around an omission marker. Truncating is
// deterministic: the same input and budget always produce the same output.
func TruncateText(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}

	budget := TokenBudgetChars(maxTokens)
	head := budget * 2 / 5
	tail := budget * 2 / 5
	if head+tail >= len(text) {
		return text
	}

	// Back each cut off to a rune boundary so a multibyte character never
	// straddles the omission marker.
	for head > 0 && !utf8.RuneStart(text[head]) {
		head--
	}
	tailStart := len(text) - tail
	for tailStart < len(text) && !utf8.RuneStart(text[tailStart]) {
		tailStart++
	}

	omitted := tailStart - head
	return fmt.Sprintf("%s\n... [%d characters omitted] ...\n%s",
		text[:head], omitted, text[tailStart:])
}

// renderValue converts a tool output value to its string form.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return renderSequence(rv)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

// renderSequence renders a slice keeping the first elements and the total
// count.
func renderSequence(rv reflect.Value) string {
	total := rv.Len()
	shown := total
	if shown > maxSequenceElements {
		shown = maxSequenceElements
	}

	elems := make([]any, shown)
	for i := 0; i < shown; i++ {
		elems[i] = rv.Index(i).Interface()
	}

	data, err := json.Marshal(elems)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", elems))
	}

	if total > shown {
		return fmt.Sprintf("%s\n[%d items total, showing first %d]", data, total, shown)
	}
	return string(data)
}
