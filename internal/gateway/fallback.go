package gateway

import "github.com/tutorloop/resilience-gateway/internal/errclass"

// costLimitMessage is served when the daily spend limit shuts off provider
// calls. Gateway-originated, so it has no classifier kind behind it.
const costLimitMessage = "The assistant has reached its usage limit for today. Please try again tomorrow."

// fallbackResponse selects the fixed degraded-reply template for a failure
// kind. Extra context is appended verbatim, never interpolated into the
// template, so caller-supplied text cannot change the template's meaning.
func fallbackResponse(kind errclass.Kind, context string) string {
	msg := errclass.Message(kind)
	if context != "" {
		msg += " " + context
	}
	return msg
}

// kindFromString reverses Kind.String for kinds persisted in LastError.
func kindFromString(s string) errclass.Kind {
	for _, k := range []errclass.Kind{
		errclass.Authentication,
		errclass.RateLimited,
		errclass.Connection,
		errclass.InvalidRequest,
		errclass.ServerError,
		errclass.Timeout,
	} {
		if k.String() == s {
			return k
		}
	}
	return errclass.Unknown
}
