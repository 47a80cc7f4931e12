package workflow

import (
	"context"
	"errors"
)

// ErrListenerClosed tells Serve that no more requests will arrive.
var ErrListenerClosed = errors.New("listener closed")

// ChannelListener delivers requests sent on a channel. Closing the channel
// closes the listener.
type ChannelListener struct {
	requests <-chan Request
}

var _ Listener = (*ChannelListener)(nil)

func NewChannelListener(requests <-chan Request) *ChannelListener {
	return &ChannelListener{requests: requests}
}

func (l *ChannelListener) WaitForEvent(ctx context.Context) (Request, error) {
	select {
	case <-ctx.Done():
		return Request{}, ctx.Err()
	case req, ok := <-l.requests:
		if !ok {
			return Request{}, ErrListenerClosed
		}
		return req, nil
	}
}
