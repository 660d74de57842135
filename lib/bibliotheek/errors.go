package bibliotheek

import (
	"fmt"
	"strings"
)

// PortalError is implemented by every error kind this package produces for
// portal-side conditions. Match concrete kinds with errors.As:
//
//	var authErr *bibliotheek.AuthenticationError
//	if errors.As(err, &authErr) { ... }
type PortalError interface {
	error
	portalError()
}

// AuthenticationError means the portal rejected or dropped the session:
// wrong credentials, a privacy statement waiting for re-acceptance, or an
// expired session. Retrying without caller action will not help.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) portalError() {}

// TemporarySiteError means the portal itself misbehaved: unreachable,
// a 5xx, or its own "try again later" banner. The same call may succeed
// once the portal recovers. The client never retries on its own.
type TemporarySiteError struct {
	// Status holds the offending HTTP status when one was received.
	Status int
	// Message holds the portal's own failure banner when one was rendered.
	Message string
	// Err holds the transport error when the portal was unreachable.
	Err error
}

func (e *TemporarySiteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("temporary portal failure: %s", e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("temporary portal failure (status %d)", e.Status)
	}
	if e.Message != "" {
		return fmt.Sprintf("temporary portal failure, the site reports: %s", e.Message)
	}
	return "temporary portal failure reported by the site"
}

func (e *TemporarySiteError) Unwrap() error { return e.Err }

func (e *TemporarySiteError) portalError() {}

// IncompatibleSourceError means a page did not match any known markup
// generation, or a required field could not be extracted. It usually
// signals the portal changed its markup and the parsers need updating.
type IncompatibleSourceError struct {
	Reason string
	// Excerpt carries the start of the offending document for diagnosis.
	Excerpt string
}

func (e *IncompatibleSourceError) Error() string {
	return fmt.Sprintf("unrecognized portal content: %s", e.Reason)
}

func (e *IncompatibleSourceError) portalError() {}

// NotFoundError means the portal does not know the requested thing,
// typically a membership id the logged-in profile cannot access.
type NotFoundError struct {
	Resource string
	Id       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Id)
}

func (e *NotFoundError) portalError() {}

const excerptLimit = 1024

func incompatible(reason string, source []byte) *IncompatibleSourceError {
	excerpt := strings.TrimSpace(string(source))
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit]
	}
	return &IncompatibleSourceError{Reason: reason, Excerpt: excerpt}
}
