package output

// Kind tags what the generator returned.
type Kind string

// Output kinds.
const (
	// Structured is a decoded JSON object.
	Structured Kind = "structured"
	// Unstructured is free text that did not decode as a JSON object.
	Unstructured Kind = "unstructured"
	// Empty is a blank response.
	Empty Kind = "empty"
)

// IsValid checks if the kind is one of the supported values.
func (k Kind) IsValid() bool {
	return k == Structured || k == Unstructured || k == Empty
}

// Output is the tagged generator result. Exactly one of object/text is meaningful,
// selected by Kind.
type Output struct {
	kind   Kind
	object map[string]any
	text   string
}

// NewStructured wraps a decoded JSON object.
func NewStructured(obj map[string]any) Output {
	return Output{kind: Structured, object: obj}
}

// NewUnstructured wraps free text (already trimmed).
func NewUnstructured(text string) Output {
	return Output{kind: Unstructured, text: text}
}

// NewEmpty returns the empty output.
func NewEmpty() Output {
	return Output{kind: Empty}
}

// Kind returns the output tag.
func (o Output) Kind() Kind { return o.kind }

// Object returns the decoded object for Structured outputs, nil otherwise.
func (o Output) Object() map[string]any { return o.object }

// Text returns the free text for Unstructured outputs, "" otherwise.
func (o Output) Text() string { return o.text }
