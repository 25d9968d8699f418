package backend

import "fmt"

// Kind classifies the outcome of a pipeline step.
type Kind int

const (
	KindOK Kind = iota
	KindEmpty
	KindUpstream
	KindTransport
	KindNotConfigured
	KindUnsupported
	KindNoText
)

var kindNames = map[Kind]string{
	KindOK:            "ok",
	KindEmpty:         "empty",
	KindUpstream:      "upstream_error",
	KindTransport:     "transport_error",
	KindNotConfigured: "not_configured",
	KindUnsupported:   "unsupported",
	KindNoText:        "no_text",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("backend: unknown result kind %q", b)
}

// Messages rendered for configuration and input outcomes.
const (
	GeminiKeyMissing = "Gemini API key not set."
	NoTextFound      = "No text found in image."
)

// Result is the outcome of one adapter call or short-circuit. Failures are
// values, not errors: every Result renders to displayable text via Display.
type Result struct {
	Kind Kind
	// Text is the decoded output for KindOK, the raw body for KindUpstream
	// and the message for KindNotConfigured and KindUnsupported.
	Text string
	// Subject is the model family for KindEmpty and the operation for KindTransport.
	Subject string
	Status  int
	Err     error
}

func OK(text string) Result { return Result{Kind: KindOK, Text: text} }

func Empty(family string) Result { return Result{Kind: KindEmpty, Subject: family} }

func Upstream(status int, body string) Result {
	return Result{Kind: KindUpstream, Status: status, Text: body}
}

func Transport(op string, err error) Result {
	return Result{Kind: KindTransport, Subject: op, Err: err}
}

func NotConfigured(msg string) Result { return Result{Kind: KindNotConfigured, Text: msg} }

func Unsupported(msg string) Result { return Result{Kind: KindUnsupported, Text: msg} }

func NoText() Result { return Result{Kind: KindNoText} }

// Failed reports whether the call did not produce model output.
func (r Result) Failed() bool {
	return r.Kind == KindUpstream || r.Kind == KindTransport
}

// Display renders the result as the text shown to the user.
func (r Result) Display() string {
	switch r.Kind {
	case KindOK:
		return r.Text
	case KindEmpty:
		return "No response from " + r.Subject + "."
	case KindUpstream:
		return "Error: " + r.Text
	case KindTransport:
		msg := "unknown error"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return "Error during " + r.Subject + ": " + msg
	case KindNoText:
		return NoTextFound
	default:
		return r.Text
	}
}
