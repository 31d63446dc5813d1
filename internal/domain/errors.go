package domain

import "errors"

var (
	ErrOriginNotAllowed  = errors.New("origin not allowed")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrPeerClosed        = errors.New("peer closed")
	ErrSendQueueFull     = errors.New("send queue full")
	ErrHeartbeatTimeout  = errors.New("heartbeat timeout")
	ErrPersistenceOff    = errors.New("stats persistence disabled")
	ErrInvalidStatsQuery = errors.New("invalid stats query")
)
