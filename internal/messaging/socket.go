// Package messaging wraps the ZeroMQ socket types spec.md §6.2 requires
// (REQ/REP, PUSH/PULL, PUB/SUB) over github.com/zeromq/goczmq/v4, the one
// ZeroMQ binding present in the retrieved example pack
// (other_examples/a7c7118c_geoffjay-plantd__core-mdp-broker.go.go). Every
// socket is polled with a bounded timeout so callers can interleave a
// process-wide stop signal (spec.md §5, "Suspension points").
package messaging

import (
	"fmt"
	"time"

	czmq "github.com/zeromq/goczmq/v4"
)

// pollTimeout bounds every blocking receive so worker loops can check a
// stop signal at least once a second (spec.md §5).
const pollTimeout = 1 * time.Second

// Rep wraps a bound REP socket (taxi registration, user requests).
type Rep struct {
	sock   *czmq.Sock
	poller *czmq.Poller
}

// BindRep binds a REP socket on the given port.
func BindRep(port int) (*Rep, error) {
	sock, err := czmq.NewRep(fmt.Sprintf("tcp://*:%d", port))
	if err != nil {
		return nil, fmt.Errorf("messaging: bind rep on %d: %w", port, err)
	}
	poller, err := czmq.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, fmt.Errorf("messaging: poller for rep %d: %w", port, err)
	}
	return &Rep{sock: sock, poller: poller}, nil
}

// Recv polls for one request, blocking up to pollTimeout. ok is false on
// timeout (no message arrived) so callers can re-check their stop signal.
func (r *Rep) Recv() (frame string, ok bool, err error) {
	ready, err := r.poller.Wait(int(pollTimeout / time.Millisecond))
	if err != nil {
		return "", false, fmt.Errorf("messaging: rep poll: %w", err)
	}
	if ready == nil {
		return "", false, nil
	}
	parts, err := ready.RecvMessage()
	if err != nil {
		return "", false, fmt.Errorf("messaging: rep recv: %w", err)
	}
	return joinFrame(parts), true, nil
}

// Send replies to the most recently received request.
func (r *Rep) Send(frame string) error {
	if err := r.sock.SendMessage([][]byte{[]byte(frame)}); err != nil {
		return fmt.Errorf("messaging: rep send: %w", err)
	}
	return nil
}

// Close destroys the underlying socket.
func (r *Rep) Close() { r.sock.Destroy() }

// Req wraps a connected REQ socket (taxi->dispatcher registration,
// user->dispatcher ride requests, monitor->primary liveness probe).
type Req struct {
	sock   *czmq.Sock
	poller *czmq.Poller
}

// DialReq connects a REQ socket to host:port.
func DialReq(host string, port int) (*Req, error) {
	sock, err := czmq.NewReq(fmt.Sprintf("tcp://%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("messaging: dial req %s:%d: %w", host, port, err)
	}
	poller, err := czmq.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, fmt.Errorf("messaging: poller for req %s:%d: %w", host, port, err)
	}
	return &Req{sock: sock, poller: poller}, nil
}

// Request sends frame and waits up to timeout for a reply. It returns an
// error on timeout so the caller can apply its own retry/failover policy
// (spec.md §4.2, §4.4).
func (r *Req) Request(frame string, timeout time.Duration) (string, error) {
	if err := r.sock.SendMessage([][]byte{[]byte(frame)}); err != nil {
		return "", fmt.Errorf("messaging: req send: %w", err)
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("messaging: req timed out after %s", timeout)
		}
		wait := remaining
		if wait > pollTimeout {
			wait = pollTimeout
		}
		ready, err := r.poller.Wait(int(wait / time.Millisecond))
		if err != nil {
			return "", fmt.Errorf("messaging: req poll: %w", err)
		}
		if ready == nil {
			continue
		}
		parts, err := ready.RecvMessage()
		if err != nil {
			return "", fmt.Errorf("messaging: req recv: %w", err)
		}
		return joinFrame(parts), nil
	}
}

// Close destroys the underlying socket.
func (r *Req) Close() { r.sock.Destroy() }

// Pull wraps a bound PULL socket (position updates, taxi heartbeats,
// backup activation signals).
type Pull struct {
	sock   *czmq.Sock
	poller *czmq.Poller
}

// BindPull binds a PULL socket on the given port.
func BindPull(port int) (*Pull, error) {
	sock, err := czmq.NewPull(fmt.Sprintf("tcp://*:%d", port))
	if err != nil {
		return nil, fmt.Errorf("messaging: bind pull on %d: %w", port, err)
	}
	poller, err := czmq.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, fmt.Errorf("messaging: poller for pull %d: %w", port, err)
	}
	return &Pull{sock: sock, poller: poller}, nil
}

// Recv polls for one fire-and-forget message, blocking up to pollTimeout.
func (p *Pull) Recv() (frame string, ok bool, err error) {
	ready, err := p.poller.Wait(int(pollTimeout / time.Millisecond))
	if err != nil {
		return "", false, fmt.Errorf("messaging: pull poll: %w", err)
	}
	if ready == nil {
		return "", false, nil
	}
	parts, err := ready.RecvMessage()
	if err != nil {
		return "", false, fmt.Errorf("messaging: pull recv: %w", err)
	}
	return joinFrame(parts), true, nil
}

// Close destroys the underlying socket.
func (p *Pull) Close() { p.sock.Destroy() }

// Push wraps a connected PUSH socket.
type Push struct {
	sock *czmq.Sock
}

// DialPush connects a PUSH socket to host:port.
func DialPush(host string, port int) (*Push, error) {
	sock, err := czmq.NewPush(fmt.Sprintf("tcp://%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("messaging: dial push %s:%d: %w", host, port, err)
	}
	return &Push{sock: sock}, nil
}

// Send fires frame at the connected PULL endpoint without waiting for
// acknowledgement (spec.md §6.2, "fire-and-forget PUSH/PULL fan-in").
func (p *Push) Send(frame string) error {
	if err := p.sock.SendMessage([][]byte{[]byte(frame)}); err != nil {
		return fmt.Errorf("messaging: push send: %w", err)
	}
	return nil
}

// Close destroys the underlying socket.
func (p *Push) Close() { p.sock.Destroy() }

// Pub wraps a bound PUB socket (assignment broadcast).
type Pub struct {
	sock *czmq.Sock
}

// BindPub binds a PUB socket on the given port.
func BindPub(port int) (*Pub, error) {
	sock, err := czmq.NewPub(fmt.Sprintf("tcp://*:%d", port))
	if err != nil {
		return nil, fmt.Errorf("messaging: bind pub on %d: %w", port, err)
	}
	return &Pub{sock: sock}, nil
}

// Publish broadcasts frame to every subscriber whose filter matches its
// prefix. Best-effort: spec.md §5 notes assignment broadcasts are
// best-effort, the synchronous reply to the user is authoritative.
func (p *Pub) Publish(frame string) error {
	if err := p.sock.SendMessage([][]byte{[]byte(frame)}); err != nil {
		return fmt.Errorf("messaging: pub send: %w", err)
	}
	return nil
}

// Close destroys the underlying socket.
func (p *Pub) Close() { p.sock.Destroy() }

// Sub wraps a connected SUB socket filtered to a single topic prefix.
type Sub struct {
	sock   *czmq.Sock
	poller *czmq.Poller
}

// DialSub connects a SUB socket to host:port and subscribes to topic.
func DialSub(host string, port int, topic string) (*Sub, error) {
	sock, err := czmq.NewSub(fmt.Sprintf("tcp://%s:%d", host, port), topic)
	if err != nil {
		return nil, fmt.Errorf("messaging: dial sub %s:%d topic %q: %w", host, port, topic, err)
	}
	poller, err := czmq.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, fmt.Errorf("messaging: poller for sub %s:%d: %w", host, port, err)
	}
	return &Sub{sock: sock, poller: poller}, nil
}

// Recv polls for one broadcast message, blocking up to pollTimeout.
func (s *Sub) Recv() (frame string, ok bool, err error) {
	ready, err := s.poller.Wait(int(pollTimeout / time.Millisecond))
	if err != nil {
		return "", false, fmt.Errorf("messaging: sub poll: %w", err)
	}
	if ready == nil {
		return "", false, nil
	}
	parts, err := ready.RecvMessage()
	if err != nil {
		return "", false, fmt.Errorf("messaging: sub recv: %w", err)
	}
	return joinFrame(parts), true, nil
}

// Close destroys the underlying socket.
func (s *Sub) Close() { s.sock.Destroy() }

func joinFrame(parts [][]byte) string {
	if len(parts) == 0 {
		return ""
	}
	out := string(parts[0])
	for _, p := range parts[1:] {
		out += " " + string(p)
	}
	return out
}
