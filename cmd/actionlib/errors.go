package main

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

// describeRemoteError prefixes failures from the cloud endpoints with a hint
// about what went wrong, keeping the original error wrapped
func describeRemoteError(err error) error {
	var (
		transport *apperrors.TransportError
		shape     *apperrors.ResponseShapeError
	)

	switch {
	case errors.Is(err, apperrors.ErrMissingOAuthToken):
		return fmt.Errorf(`%w: run "actionlib settings set-oauth" or set ACTIONLIB_OAUTH_TOKEN`, err)
	case errors.As(err, &transport):
		if transport.StatusCode == http.StatusUnauthorized || transport.StatusCode == http.StatusForbidden {
			return fmt.Errorf("credentials rejected, check the OAuth token: %w", err)
		}
		if transport.StatusCode == 0 {
			return fmt.Errorf("could not reach the service: %w", err)
		}
		return fmt.Errorf("service returned an error: %w", err)
	case errors.As(err, &shape):
		return fmt.Errorf("service answered in an unexpected format: %w", err)
	default:
		return err
	}
}
