package transport

import (
	"context"
)

// LifecycleEventKind distinguishes the session lifecycle signals a transport
// service reports alongside its audio stream.
type LifecycleEventKind int

const (
	LifecycleConnected LifecycleEventKind = iota + 1
	LifecycleDisconnected
)

// LifecycleEvent is emitted by a transport service when the remote stream
// starts or stops.
type LifecycleEvent struct {
	Kind     LifecycleEventKind
	StreamID string
	CallID   string
	Reason   string
}

type ITransportProvider interface {
	Start() error
	Stop() error
	RegisterJobHandler(
		func(svc ITransportService, ctx context.Context) error,
	) error
}
