// Package taxiagent implements the taxi client of spec.md §4.2: the
// connect/reconnect state machine, position and heartbeat publishers, and
// the assignment subscriber, including primary/backup failover. Grounded on
// arkeep/agent/internal/connection.Manager's reconnect loop (exponential
// backoff + jitter, single persistent connection, concurrent heartbeat and
// job-stream workers), adapted from a gRPC stream to the ZeroMQ REQ/PUSH/SUB
// sockets spec.md §6.2 mandates.
package taxiagent

// State is one of the taxi agent's connection states (spec.md §4.2).
type State int

const (
	Disconnected State = iota
	ConnectingPrimary
	ConnectedPrimary
	ConnectingBackup
	ConnectedBackup
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectingPrimary:
		return "connecting_primary"
	case ConnectedPrimary:
		return "connected_primary"
	case ConnectingBackup:
		return "connecting_backup"
	case ConnectedBackup:
		return "connected_backup"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// maxConsecutiveFailures is K from spec.md §4.2: "On retry-count K=5 against
// primary, escalate to backup."
const maxConsecutiveFailures = 5
