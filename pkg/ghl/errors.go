package ghl

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const maxErrorBody = 512

// APIError is returned for any response other than 200 or 201.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("ghl: %s: unexpected status %d: %s", e.Op, e.StatusCode, body)
}

// IsDuplicate reports whether the CRM rejected a contact because the email
// or phone already belongs to another contact.
func (e *APIError) IsDuplicate() bool {
	return e.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(e.Body), "duplicate")
}

// DuplicateContactID returns the existing contact id carried in the error
// body's meta.contactId, or "".
func (e *APIError) DuplicateContactID() string {
	if !gjson.Valid(e.Body) {
		return ""
	}
	return gjson.Get(e.Body, "meta.contactId").String()
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
