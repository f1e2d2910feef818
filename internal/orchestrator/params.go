package orchestrator

import (
	"net/url"
	"strconv"
	"time"

	"github.com/meme-lord/fontleak/internal/alphabet"
	"github.com/meme-lord/fontleak/internal/session"
	"github.com/meme-lord/fontleak/pkg/apperror"
)

// parseSetup builds a session.Setup from request query parameters,
// falling back to the process-wide defaults for anything omitted (spec
// §4.5: "Parameters: id?, step?, staging, plus all setup fields").
func parseSetup(q url.Values, defaults session.Setup) (session.Setup, error) {
	s := defaults

	if v := q.Get("selector"); v != "" {
		s.Selector = v
	}
	if v := q.Get("parent"); v != "" {
		if v != "body" && v != "head" {
			return s, apperror.NewBadRequest("parent must be body or head")
		}
		s.Parent = v
	}
	if v := q.Get("alphabet"); v != "" {
		norm, err := alphabet.Normalise(v)
		if err != nil {
			return s, err
		}
		s.Alphabet = norm
	}
	if v := q.Get("attr"); v != "" {
		s.Attr = v
	}
	if v := q.Get("strip"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s, apperror.NewBadRequest("strip must be a boolean")
		}
		s.Strip = b
	}
	if v := q.Get("timeout"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return s, apperror.NewBadRequest("timeout must be a positive integer number of seconds")
		}
		s.Timeout = time.Duration(seconds) * time.Second
	}
	if v := q.Get("length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s, apperror.NewBadRequest("length must be a positive integer")
		}
		s.Length = n
	}
	return s, nil
}

// parseOptionalInt parses an optional, non-negative query parameter,
// reporting whether it was present at all.
func parseOptionalInt(q url.Values, key string) (value int, present bool, err error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, false, nil
	}
	n, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return 0, true, apperror.NewBadRequest(key + " must be an integer")
	}
	return n, true, nil
}

// validateStep rejects a client-supplied step outside [0, length], per
// spec §9 Open Questions ("Chrome step indexing: the client-supplied step
// may be any integer; negative or beyond length values must be rejected
// with HTTP 400").
func validateStep(step, length int) error {
	if step < 0 || step > length {
		return apperror.NewBadRequest("step out of range")
	}
	return nil
}
