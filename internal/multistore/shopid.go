package multistore

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxShopIDLength is the maximum length of a shop ID.
const MaxShopIDLength = 64

var (
	// ErrInvalidShopID indicates a shop ID failed validation.
	ErrInvalidShopID = errors.New("invalid shop ID")
	// ErrShopNotFound indicates the requested shop has no local mirror.
	ErrShopNotFound = errors.New("shop not found")
)

// shopIDPattern matches a valid shop slug. Shop IDs become directory names,
// so they must start and end with an alphanumeric and may contain hyphens in
// the middle.
var shopIDPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateShopID validates a shop ID against format rules.
// Returns nil if valid, ErrInvalidShopID with details if invalid.
func ValidateShopID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty shop ID", ErrInvalidShopID)
	}

	if len(id) > MaxShopIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidShopID, MaxShopIDLength)
	}

	if !shopIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q (must be lowercase alphanumeric with hyphens)",
			ErrInvalidShopID, id)
	}

	return nil
}
