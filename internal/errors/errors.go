package errors

import (
	"github.com/cockroachdb/errors"
)

// Standard error sentinels used to Mark errors across the codebase.
// Consumers should match on these with the Is* predicates rather than
// comparing error strings.
var (
	ErrValidation       = errors.New("validation_error")
	ErrNotFound         = errors.New("not_found")
	ErrAlreadyExists    = errors.New("already_exists")
	ErrVersionConflict  = errors.New("version_conflict")
	ErrDatabase         = errors.New("database_error")
	ErrHTTPClient       = errors.New("http_client_error")
	ErrGatewayDeclined  = errors.New("gateway_declined")
	ErrGatewayTimeout   = errors.New("gateway_timeout")
	ErrConfiguration    = errors.New("configuration_error")
	ErrPermissionDenied = errors.New("permission_denied")
	ErrInternal         = errors.New("internal_error")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict reports whether a conditional (expected-status) update
// lost the race and must be re-evaluated by the caller.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}

func IsGatewayDeclined(err error) bool {
	return errors.Is(err, ErrGatewayDeclined)
}

func IsGatewayTimeout(err error) bool {
	return errors.Is(err, ErrGatewayTimeout)
}

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
