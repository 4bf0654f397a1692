package domain

import "fmt"

// OpenSessionError rejects a start while another session is still open. It
// names the in-flight session so clients can resume, finalize, or abandon it
// instead of losing its history.
type OpenSessionError struct {
	SessionID string
}

func (e *OpenSessionError) Error() string {
	return fmt.Sprintf("an interview session is already open: %s", e.SessionID)
}

// Unwrap makes the error match ErrConflict.
func (e *OpenSessionError) Unwrap() error { return ErrConflict }

// SuggestedActions lists what a client can do with the existing session.
func (e *OpenSessionError) SuggestedActions() []string {
	return []string{"message", "finalize", "abandon"}
}

// AlreadyCompletedError rejects finalize on a completed session while
// surfacing the stored evaluation, which is never recomputed.
type AlreadyCompletedError struct {
	SessionID  string
	Evaluation Evaluation
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("interview session already completed: %s", e.SessionID)
}

// Unwrap makes the error match ErrConflict.
func (e *AlreadyCompletedError) Unwrap() error { return ErrConflict }
