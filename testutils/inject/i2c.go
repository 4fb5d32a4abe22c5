// Package inject provides function-field fakes for the bus interfaces.
package inject

import (
	"context"

	"go.viam.com/tinywire/twi"
)

// Transport is an injected twi.Transport.
type Transport struct {
	twi.Transport
	InitializeFunc func(ctx context.Context) error
	TransferFunc   func(ctx context.Context, msg []byte) error
}

// Initialize calls the injected Initialize or the real version.
func (t *Transport) Initialize(ctx context.Context) error {
	if t.InitializeFunc == nil {
		return t.Transport.Initialize(ctx)
	}
	return t.InitializeFunc(ctx)
}

// Transfer calls the injected Transfer or the real version.
func (t *Transport) Transfer(ctx context.Context, msg []byte) error {
	if t.TransferFunc == nil {
		return t.Transport.Transfer(ctx, msg)
	}
	return t.TransferFunc(ctx, msg)
}
