package integration

import (
	"fmt"
	"net/http"
)

// NoItemsMessage is the summary reported for a request without items
const NoItemsMessage = "No items to process"

// RequestOutcome aggregates the result of synchronizing one inbound request.
// Success is decided at request level: any recorded error fails the request,
// however many stores were delivered. Counts are informational.
type RequestOutcome struct {
	Updated int      `json:"updated"`
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// NewRequestOutcome creates an empty outcome
func NewRequestOutcome() *RequestOutcome {
	return &RequestOutcome{Errors: make([]string, 0)}
}

// AddUpdated adds n upserted items
func (o *RequestOutcome) AddUpdated(n int) {
	o.Updated += n
}

// AddDeleted adds n deleted items
func (o *RequestOutcome) AddDeleted(n int) {
	o.Deleted += n
}

// AddSkipped adds n skipped items
func (o *RequestOutcome) AddSkipped(n int) {
	o.Skipped += n
}

// AddError records a failed operation
func (o *RequestOutcome) AddError(msg string) {
	o.Errors = append(o.Errors, msg)
}

// HasErrors returns true if any operation failed
func (o *RequestOutcome) HasErrors() bool {
	return len(o.Errors) > 0
}

// FirstError returns the first recorded error, or "" if none
func (o *RequestOutcome) FirstError() string {
	if len(o.Errors) == 0 {
		return ""
	}
	return o.Errors[0]
}

// StatusCode returns the HTTP status reported for the request
func (o *RequestOutcome) StatusCode() int {
	if o.HasErrors() {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// Summary returns the human readable result of the request
func (o *RequestOutcome) Summary() string {
	if o.HasErrors() {
		return fmt.Sprintf("Processed with errors: %d items updated, %d items deleted, %d errors. First error: %s",
			o.Updated, o.Deleted, len(o.Errors), o.FirstError())
	}
	return fmt.Sprintf("Success: %d items updated, %d items deleted, %d items skipped (unmapped stores)",
		o.Updated, o.Deleted, o.Skipped)
}
