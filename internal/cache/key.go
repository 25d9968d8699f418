package cache

import (
	"fmt"
	"strings"
)

// ResultKey identifies one pipeline's result for one file within one session.
type ResultKey struct {
	SessionID string
	Filename  string
	Pipeline  string
}

// String converts the structured key into the final string used in Redis/map
// and as the comparison selector value.
func (k ResultKey) String() string {
	// result:<SESSION_ID>:<FILENAME>:<PIPELINE>
	return fmt.Sprintf("result:%s:%s:%s", k.SessionID, k.Filename, k.Pipeline)
}

// ParseResultKey reverses ResultKey.String. Session ids and pipeline ids never
// contain ':' and stored filenames are sanitized, so the split is unambiguous.
func ParseResultKey(s string) (ResultKey, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != "result" {
		return ResultKey{}, false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return ResultKey{}, false
		}
	}
	return ResultKey{
		SessionID: parts[1],
		Filename:  parts[2],
		Pipeline:  parts[3],
	}, true
}
