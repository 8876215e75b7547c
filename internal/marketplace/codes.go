// Package marketplace implements the remote marketplace listing API:
// the six listing operations, the merchant probe, and the status-code
// taxonomy that drives reconciliation.
package marketplace

// Status codes returned by the marketplace listing API.
const (
	StatusDone           = 200
	StatusCreated        = 201
	StatusProcessing     = 202
	StatusBadRequest     = 400
	StatusUnauthorized   = 401
	StatusForbidden      = 403
	StatusNotFound       = 404
	StatusPartialFailure = 409
	StatusJobFailed      = 410
	StatusJobTimeout     = 499
	StatusSiteDown       = 500
	StatusAPIDisabled    = 503
)

// Outcome is the three-way (plus still-processing) classification of a
// remote status code. Every response falls in exactly one class.
type Outcome int

const (
	// OutcomeSuccess: the operation completed; reconcile the cache.
	OutcomeSuccess Outcome = iota
	// OutcomeProcessing: the server accepted the job but has not finished;
	// the folder stays pending and is polled.
	OutcomeProcessing
	// OutcomeClientError: the request was rejected; pending clears, the
	// cache is untouched, the error is reported. Retrying without a
	// change on the caller's side will not help.
	OutcomeClientError
	// OutcomeTransient: a server or job failure; pending clears, the
	// cache is untouched, and the caller may retry the whole operation.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeProcessing:
		return "processing"
	case OutcomeClientError:
		return "client_error"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Classify maps a status code to its outcome class.
func Classify(status int) Outcome {
	switch status {
	case StatusDone, StatusCreated:
		return OutcomeSuccess
	case StatusProcessing:
		return OutcomeProcessing
	case StatusBadRequest, StatusUnauthorized, StatusForbidden, StatusNotFound:
		return OutcomeClientError
	case StatusPartialFailure, StatusJobFailed, StatusJobTimeout, StatusSiteDown, StatusAPIDisabled:
		return OutcomeTransient
	}
	if status >= 200 && status < 300 {
		return OutcomeSuccess
	}
	if status >= 400 && status < 500 {
		return OutcomeClientError
	}
	return OutcomeTransient
}
