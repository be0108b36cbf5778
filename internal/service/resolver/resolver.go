// Package resolver turns a user utterance into an assistant reply, either by
// calling the NILM chat endpoint or by the offline keyword responder.
package resolver

import (
	"context"
	"errors"
)

// Resolver produces the reply text for one utterance.
type Resolver interface {
	Resolve(ctx context.Context, utterance string) (string, error)
}

// Kind categorizes resolution failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindEmptyResponse means the endpoint answered without a body.
	KindEmptyResponse
	// KindNetwork covers transport failures, timeouts and non-2xx statuses.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindEmptyResponse:
		return "empty_response"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// DefaultNetworkMessage is used when neither the server nor the transport supplied one.
const DefaultNetworkMessage = "Network error occurred"

// Error is a resolution failure carrying a display message.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrEmptyResponse) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Sentinel errors for kind checks.
var (
	ErrEmptyResponse = &Error{Kind: KindEmptyResponse, Message: "Empty response from server"}
	ErrNetwork       = &Error{Kind: KindNetwork, Message: DefaultNetworkMessage}
	ErrBusy          = errors.New("a resolution is already in flight")
)

func networkError(message string, status int, cause error) *Error {
	if message == "" {
		message = DefaultNetworkMessage
	}
	return &Error{Kind: KindNetwork, Message: message, Status: status, Cause: cause}
}
