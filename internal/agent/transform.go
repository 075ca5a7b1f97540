package agent

// ResultTransform rewrites one tool output for presentation. Transforms
// must be pure: same input, same output, no I/O.
type ResultTransform func(output string) string

// Transforms maps tool names to output rewrites. A transform runs once,
// as the output is produced, so the stored transcript, the event stream,
// and the model projection all carry the same humanized text. Denials and
// error results are never transformed.
type Transforms map[string]ResultTransform

// ApplyOutput rewrites a successful output for the named tool. Tools
// without a transform get their output back verbatim, as does any input a
// transform cannot improve.
func (t Transforms) ApplyOutput(tool, output string) string {
	fn, ok := t[tool]
	if !ok {
		return output
	}
	return fn(output)
}
