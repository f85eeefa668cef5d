package overpass

import "fmt"

// DataSourceError is returned when the Overpass API cannot deliver a usable
// response: transport failure, timeout, non-2xx status or an undecodable body.
type DataSourceError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *DataSourceError) Error() string {
	if e.StatusCode != 0 {
		msg := fmt.Sprintf("API request failed. %d %s", e.StatusCode, e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
		return msg
	}
	return fmt.Sprintf("API request failed: %v", e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}
