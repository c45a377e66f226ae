// Package pipelineerr implements the error taxonomy from spec §7. The
// upstream API client (internal/pubgapi) returns its failures as these
// types, which callers can tell apart with errors.As; the workers do not
// branch on them and record the error message on the ledger row instead.
package pipelineerr

import "fmt"

// TransportError is a transient transport-level failure (connection reset,
// timeout, DNS). Retried with backoff; never surfaced to the ledger.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError is an upstream-absent response (404 on a match or
// telemetry URL). The match is marked failed and the pipeline stops.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found upstream", e.Resource, e.ID)
}

// ThrottledError signals a 429 response. The caller should record the
// throttle against the credential that made the request and retry.
type ThrottledError struct {
	Op string
}

func (e *ThrottledError) Error() string { return fmt.Sprintf("throttled during %s", e.Op) }

// MalformedResponseError is a data-malformed failure: unexpected JSON shape,
// a missing asset URL, or any other structural surprise in an upstream
// payload. Treated the same as NotFoundError by callers (match marked
// failed with a descriptive message).
type MalformedResponseError struct {
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed upstream response: %s", e.Detail)
}

// OperationalError covers infrastructure outages (database down, file store
// full). Workers loop on the current message after backoff rather than
// declaring success.
type OperationalError struct {
	Op  string
	Err error
}

func (e *OperationalError) Error() string {
	return fmt.Sprintf("operational failure during %s: %v", e.Op, e.Err)
}
func (e *OperationalError) Unwrap() error { return e.Err }
