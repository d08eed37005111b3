// Package transport defines the contract between the dispatch loop and the
// message sinks. SendAsync never waits for delivery: the outcome arrives later
// through the ConfirmFunc, on a goroutine owned by the client.
package transport

import (
	"errors"

	"edgeagent/internal/dto"
)

var (
	// ErrQueueFull is returned by SendAsync when the client cannot accept more work.
	ErrQueueFull = errors.New("transport queue full")
	// ErrClosed is returned by SendAsync after Close.
	ErrClosed = errors.New("transport closed")
)

// ConfirmFunc receives the outcome of one send together with the context it was sent with.
type ConfirmFunc func(msg *dto.Message, result dto.Result, ctx uint64)

// Client accepts messages for asynchronous delivery.
//
// When SendAsync returns nil, onConfirm is called exactly once for that send.
// Close confirms sends still queued with BECAUSE_DESTROY before it returns; a
// send already in flight is not awaited and may confirm after Close.
// When SendAsync returns an error, onConfirm is never called.
type Client interface {
	SendAsync(channel string, msg *dto.Message, onConfirm ConfirmFunc, ctx uint64) error
	Close()
}
