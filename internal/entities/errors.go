package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBackpressure is returned when a slow consumer's queue is full.
	ErrBackpressure = errors.New("backpressure: outbound queue full")
	// ErrEmptyMessage is returned when a send carries no text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong is returned when a send exceeds MaxMessageLength.
	ErrMessageTooLong = errors.New("message is too long")
	// ErrMissingUserID is returned when an operation names no conversation.
	ErrMissingUserID = errors.New("user id is required")
)

// ConflictError is returned when a takeover is attempted while another admin
// holds the conversation and single-owner policy is on.
type ConflictError struct {
	UserID string
	HeldBy string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conversation %s is already taken over by %s", e.UserID, e.HeldBy)
}

// PersistenceError wraps a failed read or write against a store.
type PersistenceError struct {
	Op  string // "insert_turn", "load_ownership", ...
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// DeliveryError is returned when a committed turn could not be delivered to
// the external channel.
type DeliveryError struct {
	UserID string
	TurnID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error [%s] turn %d: %v", e.UserID, e.TurnID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
