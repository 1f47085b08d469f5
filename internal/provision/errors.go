package provision

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrProvisioningFailed matches every *ProvisioningError via errors.Is.
var ErrProvisioningFailed = errors.New("provisioning failed")

type ProvisioningError struct {
	Op   string
	Name string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (e *ProvisioningError) Is(target error) bool { return target == ErrProvisioningFailed }

type RequestError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s request failed status=%d body=%s", e.Service, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *RequestError) Unauthorized() bool {
	return e != nil && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}
