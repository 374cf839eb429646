package auth

import (
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
)

// codedError is a sentinel that carries its Connect code.
type codedError struct {
	msg  string
	code connect.Code
}

func (e *codedError) Error() string { return e.msg }

// ConnectCode implements the ConnectCoder contract used by authn.
func (e *codedError) ConnectCode() connect.Code { return e.code }

var (
	// ErrUnauthorized is returned when a token is empty, malformed, outside
	// its validity window, or rejected by the identity authority.
	ErrUnauthorized error = &codedError{msg: "unauthorized", code: connect.CodeUnauthenticated}

	// ErrNoContext is returned when claims are read from a UserContext
	// before a successful verification.
	ErrNoContext error = &codedError{msg: "no verified user context", code: connect.CodeInternal}

	// ErrNoClientFactory is returned by UserContext.Client when the verifier
	// has no way to build an API client.
	ErrNoClientFactory = errors.New("no api client factory configured")

	// ErrCacheRequired is returned when NewVerifier gets a nil cache.
	ErrCacheRequired = errors.New("validation cache is required")

	// ErrClientRequired is returned when NewVerifier gets a nil remote client.
	ErrClientRequired = errors.New("remote client is required")
)

// InsufficientRolesError is returned when a valid token carries none of the
// required roles.
type InsufficientRolesError struct {
	SufficientRoles []string
	AssignedRoles   []string
}

func (e *InsufficientRolesError) Error() string {
	return fmt.Sprintf("insufficient roles: requires one of [%s], assigned [%s]",
		strings.Join(e.SufficientRoles, ", "), strings.Join(e.AssignedRoles, ", "))
}

// ConnectCode implements the ConnectCoder contract used by authn.
func (e *InsufficientRolesError) ConnectCode() connect.Code { return connect.CodePermissionDenied }

// UnknownUserTypeError is returned when the usrtype claim maps to no
// commerce role. It signals an unsupported token shape, not a rejected caller.
type UnknownUserTypeError struct {
	UserType string
}

func (e *UnknownUserTypeError) Error() string {
	return fmt.Sprintf("unknown user type: %q", e.UserType)
}

// ConnectCode implements the ConnectCoder contract used by authn.
func (e *UnknownUserTypeError) ConnectCode() connect.Code { return connect.CodeInternal }
