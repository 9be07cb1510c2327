package splitz

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by evaluation entry points. Callers distinguish
// outcomes with [errors.Is].
var (
	// ErrVisitorCodeEmpty is returned when a visitor code is empty or blank.
	ErrVisitorCodeEmpty = errors.New("splitz: visitor code is empty")

	// ErrVisitorCodeTooLong is returned when a visitor code exceeds 255 bytes.
	ErrVisitorCodeTooLong = errors.New("splitz: visitor code exceeds 255 characters")

	// ErrFeatureNotFound is returned when no feature flag has the given key.
	ErrFeatureNotFound = errors.New("splitz: feature flag not found")

	// ErrExperimentNotFound is returned when no experiment has the given id.
	ErrExperimentNotFound = errors.New("splitz: experiment not found")

	// ErrFeatureEnvDisabled is returned when the flag or experiment exists
	// but is disabled for the current environment.
	ErrFeatureEnvDisabled = errors.New("splitz: feature disabled for environment")

	// ErrSiteCodeDisabled is returned when the whole site is disabled.
	ErrSiteCodeDisabled = errors.New("splitz: site code disabled")

	// ErrNotTargeted is returned when no rule targets the visitor and the
	// flag declares no default variation to fall back to.
	ErrNotTargeted = errors.New("splitz: visitor not targeted")

	// ErrNotActivated is returned when the visitor is in the experiment's
	// audience but the deviation table allocates no variation.
	ErrNotActivated = errors.New("splitz: experiment not activated for visitor")

	// ErrNoConfiguration is returned when no configuration snapshot has been
	// loaded yet and the call's context expired while waiting for one.
	ErrNoConfiguration = errors.New("splitz: no configuration loaded")

	// ErrVariationNotFound is returned when a forced variation key does not
	// exist on the flag.
	ErrVariationNotFound = errors.New("splitz: variation not found")
)

const maxVisitorCodeLength = 255

func validateVisitorCode(code string) error {
	if code == "" {
		return ErrVisitorCodeEmpty
	}
	if len(code) > maxVisitorCodeLength {
		return fmt.Errorf("%w: %d bytes", ErrVisitorCodeTooLong, len(code))
	}
	return nil
}
