package service

import (
	"errors"
	"fmt"

	"ridehail/internal/domain"
)

// Error kinds. Every error returned by a service wraps exactly one of these.
var (
	// ErrNotFound is returned when a ride or driver does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the entity is not in the state the
	// operation requires. The caller may re-read and retry.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the caller lacks rights on the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrInfrastructure is returned when a store or broker is unavailable.
	ErrInfrastructure = errors.New("infrastructure unavailable")
)

var (
	ErrRideNotFound   = fmt.Errorf("%w: ride", ErrNotFound)
	ErrDriverNotFound = fmt.Errorf("%w: driver", ErrNotFound)
	// ErrLocationNotFound is returned when a driver never reported a location.
	ErrLocationNotFound = fmt.Errorf("%w: driver location", ErrNotFound)

	ErrRideAlreadyAssigned  = fmt.Errorf("%w: ride already has a driver", ErrConflict)
	ErrDriverUnavailable    = fmt.Errorf("%w: driver is not online", ErrConflict)
	ErrRideNotAssigned      = fmt.Errorf("%w: ride is not in assigned state", ErrConflict)
	ErrRideNotStarted       = fmt.Errorf("%w: ride is not in started state", ErrConflict)
	ErrRideAlreadyStarted   = fmt.Errorf("%w: ride already started", ErrConflict)
	ErrRideAlreadyCompleted = fmt.Errorf("%w: ride already completed", ErrConflict)
	ErrRideAlreadyCancelled = fmt.Errorf("%w: ride already cancelled", ErrConflict)
	ErrRideStateChanged     = fmt.Errorf("%w: ride state changed concurrently", ErrConflict)
	ErrDriverStateChanged   = fmt.Errorf("%w: driver state changed concurrently", ErrConflict)
	ErrDriverOnTrip         = fmt.Errorf("%w: driver is on a trip", ErrConflict)
	ErrDriverExists         = fmt.Errorf("%w: driver already registered", ErrConflict)

	ErrNotRideParticipant = fmt.Errorf("%w: caller is not a participant of this ride", ErrForbidden)
	ErrNotAssignedDriver  = fmt.Errorf("%w: caller is not the assigned driver", ErrForbidden)
	ErrRoleNotAllowed     = fmt.Errorf("%w: role not allowed", ErrForbidden)

	ErrInvalidRideID         = fmt.Errorf("%w: invalid ride id", ErrValidation)
	ErrInvalidDriverID       = fmt.Errorf("%w: invalid driver id", ErrValidation)
	ErrInvalidDriverName     = fmt.Errorf("%w: driver name is required", ErrValidation)
	ErrInvalidPickupLocation = fmt.Errorf("%w: invalid pickup location", ErrValidation)
	ErrInvalidDropoff        = fmt.Errorf("%w: invalid dropoff location", ErrValidation)
	ErrInvalidLocation       = fmt.Errorf("%w: invalid location", ErrValidation)
	ErrInvalidRadius         = fmt.Errorf("%w: invalid radius", ErrValidation)
	ErrInvalidStatus         = fmt.Errorf("%w: invalid driver status", ErrValidation)
	ErrInvalidPage           = fmt.Errorf("%w: page must be >= 1 and limit between 1 and 100", ErrValidation)
	ErrInvalidTripMetrics    = fmt.Errorf("%w: invalid distance or duration", ErrValidation)
	ErrMissingTripMetrics    = fmt.Errorf("%w: distance is required when the ride has no dropoff", ErrValidation)
)

// infraError wraps a failing dependency call as ErrInfrastructure while
// keeping the cause inspectable.
func infraError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructure, err)
}

// txError passes service errors raised inside a transaction through and
// wraps anything else, such as a failed commit, as infrastructure.
func txError(op string, err error) error {
	if err == nil || isKind(err) {
		return err
	}
	return infraError(op, err)
}

func isKind(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrForbidden, ErrValidation, ErrInfrastructure} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// rideStatusConflict names the conflict of a ride that has already left
// the status an operation expected.
func rideStatusConflict(status domain.RideStatus) error {
	switch status {
	case domain.RideStatusAssigned:
		return ErrRideAlreadyAssigned
	case domain.RideStatusStarted:
		return ErrRideAlreadyStarted
	case domain.RideStatusCompleted:
		return ErrRideAlreadyCompleted
	case domain.RideStatusCancelled:
		return ErrRideAlreadyCancelled
	default:
		return ErrRideStateChanged
	}
}
