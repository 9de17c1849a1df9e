package patientapi

import "fmt"

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("patientapi: unexpected status %d: %s", e.StatusCode, e.Body)
}

// SchemaError is returned when a 2xx patients body is valid JSON but does not
// have the expected shape.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "patientapi: invalid page: " + e.Reason
}
