package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/pinba/internal/logx"
)

// ErrShortWrite is returned when the socket accepted fewer bytes than the
// packet holds.
var ErrShortWrite = errors.New("short write")

// Sender delivers one encoded packet.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, payload []byte) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// DefaultTimeout bounds dial and write when ctx carries no deadline.
const DefaultTimeout = time.Second

// UDPOption configures a UDPSender.
type UDPOption func(*UDPSender)

// WithTimeout sets the dial and write timeout used when the context has no
// deadline. Zero disables it.
func WithTimeout(d time.Duration) UDPOption {
	return func(u *UDPSender) { u.timeout = d }
}

// WithRate paces sends to at most perSecond packets per second.
func WithRate(perSecond int) UDPOption {
	return func(u *UDPSender) {
		if perSecond > 0 {
			u.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// WithLogger sets the logger receiving send failures.
func WithLogger(l logx.Logger) UDPOption {
	return func(u *UDPSender) { u.log = l }
}

// UDPSender writes each packet as a single datagram to one collector.
type UDPSender struct {
	addr    string
	timeout time.Duration
	limiter *rate.Limiter
	log     logx.Logger
	dialer  net.Dialer
	stats   Stats
}

// NewUDP creates a sender for target, see ParseTarget for accepted forms.
func NewUDP(target string, opts ...UDPOption) (*UDPSender, error) {
	addr, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	u := &UDPSender{addr: addr, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(u)
	}
	u.log = logx.OrDefault(u.log)
	return u, nil
}

// Addr returns the normalized collector address.
func (u *UDPSender) Addr() string { return u.addr }

// Stats returns the sender's counters.
func (u *UDPSender) Stats() *Stats { return &u.stats }

// Send dials the collector and writes payload as one datagram.
func (u *UDPSender) Send(ctx context.Context, payload []byte) error {
	err := u.send(ctx, payload)
	if err != nil {
		u.stats.recordError()
		u.log.Warnf("send to %s failed: %s", u.addr, err)
		return err
	}
	u.stats.recordSent(len(payload))
	return nil
}

func (u *UDPSender) send(ctx context.Context, payload []byte) error {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	if _, ok := ctx.Deadline(); !ok && u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	conn, err := u.dialer.DialContext(ctx, "udp", u.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}
	n, err := conn.Write(payload)
	if err != nil {
		return fmt.Errorf("write %s: %w", u.addr, err)
	}
	if n < len(payload) {
		return fmt.Errorf("%w: %d of %d bytes to %s", ErrShortWrite, n, len(payload), u.addr)
	}
	return nil
}

// Multi sends every packet to each of its senders in order. The returned
// error joins the individual failures.
type Multi []Sender

// Send delivers payload to every sender.
func (m Multi) Send(ctx context.Context, payload []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder is an in-memory Sender. It keeps a copy of every payload and
// fails with Err when set.
type Recorder struct {
	mu       sync.Mutex
	payloads [][]byte
	Err      error
}

// Send records payload.
func (r *Recorder) Send(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.payloads = append(r.payloads, append([]byte(nil), payload...))
	return nil
}

// Payloads returns the recorded payloads.
func (r *Recorder) Payloads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.payloads))
	copy(out, r.payloads)
	return out
}
