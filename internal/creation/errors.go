package creation

import (
	"errors"
	"fmt"
)

var ErrPoemTooShort = errors.New("poem too short")

// ServiceError wraps a failed or non-successful call to the image service.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("image service: %v", e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failure while fetching the generated image bytes.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch image: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
