package watchdog

import "context"

// Session is a live control-channel handle to the router. The lifecycle
// manager owns exactly one at a time; nothing else holds one across
// cycles. *tr064.Client satisfies it.
type Session interface {
	ExternalIPAddress(ctx context.Context, service string) (string, error)
	ForceTermination(ctx context.Context, service string) error
	Reboot(ctx context.Context) error
}

// Connector establishes fresh sessions.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a plain function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Session, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Session, error) { return f(ctx) }
