// Package lightning provides the event source capability for remote lightning
// nodes. Two protocol clients implement the same Client interface; the
// implementation is selected once when credentials are resolved, not per call.
package lightning

import (
	"context"
	"errors"
	"fmt"

	"github.com/lnwatch/dashboard/internal/app/domain/event"
	"github.com/lnwatch/dashboard/internal/app/domain/node"
	"github.com/lnwatch/dashboard/pkg/logger"
)

// ErrConnection marks failures to open or authenticate an event feed. It is
// surfaced to the subscription caller; there is no internal retry.
var ErrConnection = errors.New("node connection failed")

// ErrProtocol marks malformed raw events. Feeds log it per event and continue.
var ErrProtocol = errors.New("malformed node event")

// Client streams protocol-native events from one lightning node.
type Client interface {
	// NodeID returns the public key of the node this client is bound to.
	NodeID() string

	// OpenEventFeed opens a live feed of raw events for the selected category.
	// event.CategoryAll merges every supported stream into one feed. The
	// returned channel is closed when the feed terminates or ctx is
	// cancelled. Open failures wrap ErrConnection.
	OpenEventFeed(ctx context.Context, selector event.Category) (<-chan RawEvent, error)

	// Close releases any resources held outside open feeds.
	Close() error
}

// Connector builds a protocol client from cached node credentials.
type Connector interface {
	Connect(ctx context.Context, creds node.Credentials) (Client, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, creds node.Credentials) (Client, error)

func (f ConnectorFunc) Connect(ctx context.Context, creds node.Credentials) (Client, error) {
	return f(ctx, creds)
}

// NewConnector returns the default connector selecting the protocol client
// from the credential node type.
func NewConnector(log *logger.Logger) Connector {
	if log == nil {
		log = logger.NewDefault("lightning")
	}
	return ConnectorFunc(func(_ context.Context, creds node.Credentials) (Client, error) {
		switch creds.Type {
		case node.TypeLND:
			return NewLndClient(creds, log)
		case node.TypeCLN:
			return NewClnClient(creds, log)
		default:
			return nil, fmt.Errorf("unsupported node type %q", creds.Type)
		}
	})
}
