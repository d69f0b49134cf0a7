package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	ErrCampaignBusy      = errors.New("campaign dispatch already in progress")
	ErrInvalidAddress    = errors.New("invalid recipient address")
	ErrMissingFields     = errors.New("missing required fields")
)

// ResolutionError is a failed segment or recipient lookup. It is fatal to
// the whole run.
type ResolutionError struct {
	Stage string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve recipients (%s): %v", e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
