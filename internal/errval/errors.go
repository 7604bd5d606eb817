package errval

import (
	"errors"
)

var (
	ErrInternal          = errors.New("internal server error")
	ErrNotFound          = errors.New("not found")
	ErrConnectionRefused = errors.New("connection refused by broker")
	ErrNotConnected      = errors.New("broker connection is not established")
	ErrNotConfigured     = errors.New("connector is not configured")
	ErrConfigured        = errors.New("connector is already configured")
	ErrNoHandler         = errors.New("no handler attached to consumer")
	ErrChannelClosed     = errors.New("broker channel closed")
	ErrHeartbeatLost     = errors.New("service heartbeat lost")
	ErrProducerStarted   = errors.New("producer already started")
	ErrProducerStopped   = errors.New("producer already stopped")
	ErrInvalidPayload    = errors.New("payload is not valid UTF-8")
	ErrInvalidExchange   = errors.New("invalid exchange")
)
