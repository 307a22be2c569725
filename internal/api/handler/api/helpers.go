package api

import (
	"errors"
	"strings"

	"github.com/newthinker/paperdesk/internal/core"
)

// committed reports whether err only says the change could not be saved.
// The change itself was applied and the response still carries it.
func committed(err error) bool {
	return errors.Is(err, core.ErrStorageFailed)
}

// splitTickers parses a comma separated ticker list.
func splitTickers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := core.NormalizeTicker(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
