package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Input errors
	ErrInvalidRange  = errors.New("integration range must be finite")
	ErrInvalidStep   = errors.New("step must be a positive finite number")
	ErrUnknownKernel = errors.New("unknown integration kernel")
	ErrTooManyTasks  = errors.New("range needs too many tasks")

	// Wire errors
	ErrShortRecord = errors.New("incomplete wire record")

	// Discovery errors (fatal to the discovery attempt)
	ErrSocketSetup     = errors.New("socket setup failed")
	ErrBroadcastFailed = errors.New("discovery broadcast failed")
	ErrNoPeers         = errors.New("no workers answered discovery")

	// Exchange errors (per-peer transient, absorbed by the dispatcher)
	ErrExchangeFailed = errors.New("task exchange failed")

	// History errors
	ErrRunNotFound = errors.New("run not found")
)
