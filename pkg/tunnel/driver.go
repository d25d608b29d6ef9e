package tunnel

// Target identifies the remote end of a tunnel: one exposed port of a
// service in a namespace.
type Target struct {
	Namespace  string
	Service    string
	RemotePort int32
}

// OutcomeKind classifies driver reports. Ready is informational and may
// be followed by exactly one terminal report (Stopped or Failed). A
// driver never reports more than one terminal outcome.
type OutcomeKind int

const (
	// OutcomeReady means the local listener is bound and the tunnel
	// accepts connections.
	OutcomeReady OutcomeKind = iota
	// OutcomeStopped means the tunnel ended because it was cancelled.
	OutcomeStopped
	// OutcomeFailed means setup or the stream itself broke; err carries
	// the reason.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReady:
		return "Ready"
	case OutcomeStopped:
		return "Stopped"
	case OutcomeFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ReportFunc receives driver outcomes. err is non-nil only for
// OutcomeFailed. Implementations must be safe to call from the driver's
// own goroutines.
type ReportFunc func(kind OutcomeKind, err error)

// Driver starts forwarding streams. Start must not block on network
// I/O; setup failures are reported asynchronously through report.
type Driver interface {
	Start(target Target, localPort int, report ReportFunc) (Handle, error)
}

// Handle cancels a running tunnel. Cancel is idempotent, and after it
// returns the local listener is released within bounded time even if
// the remote side never responds.
type Handle interface {
	Cancel()
}
