package session

import (
	"context"
	"errors"
	"time"

	"github.com/torosent/pinba/internal/packet"
	"github.com/torosent/pinba/internal/tags"
	"github.com/torosent/pinba/internal/timer"
	"github.com/torosent/pinba/internal/transport"
)

// ErrNoServers is returned by NewClient for an empty server list.
var ErrNoServers = errors.New("no servers given")

// Client reports requests measured outside the current process, for
// example by a proxy or a batch job, to a fixed set of collectors. Timer
// values and hit counts are supplied by the caller.
type Client struct {
	session *Session
	flags   Flag
	senders []*transport.UDPSender
}

// NewClient creates a Client sending to every address in servers. flags
// are added to the flags of every Data and Send call.
func NewClient(servers []string, flags Flag, opts ...Option) (*Client, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	c := &Client{flags: flags, session: New(opts...)}

	var (
		multi transport.Multi
		errs  []error
	)
	for _, server := range servers {
		opts := append([]transport.UDPOption{transport.WithLogger(c.session.log)}, c.session.udpOpts...)
		u, err := transport.NewUDP(server, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.senders = append(c.senders, u)
		multi = append(multi, u)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if c.session.sender == nil {
		c.session.sender = multi
	}
	return c, nil
}

// SetRequestCount sets how many requests the packet stands for.
func (c *Client) SetRequestCount(n uint32) { c.session.SetRequestCount(n) }

// SetMemoryFootprint sets the memory footprint of the request.
func (c *Client) SetMemoryFootprint(n uint32) { c.session.SetMemoryFootprint(n) }

// SetMemoryPeak sets the peak memory usage of the request.
func (c *Client) SetMemoryPeak(n uint32) { c.session.SetMemoryPeak(n) }

// SetDocumentSize sets the response size in bytes.
func (c *Client) SetDocumentSize(n uint32) { c.session.SetDocumentSize(n) }

// SetStatus sets the response status.
func (c *Client) SetStatus(status uint32) { c.session.SetStatus(status) }

// SetHostname sets the host that served the request.
func (c *Client) SetHostname(name string) { c.session.SetHostname(name) }

// SetServerName sets the virtual host the request was served for.
func (c *Client) SetServerName(name string) { c.session.SetServerName(name) }

// SetScriptName sets the script or route name.
func (c *Client) SetScriptName(name string) { c.session.SetScriptName(name) }

// SetSchema sets the request schema, such as "http" or "https".
func (c *Client) SetSchema(schema string) { c.session.SetSchema(schema) }

// SetRusage sets the request CPU times.
func (c *Client) SetRusage(user, system time.Duration) { c.session.SetRusage(user, system) }

// SetRequestTime sets the request duration.
func (c *Client) SetRequestTime(d time.Duration) { c.session.setRequestDuration(d) }

// SetTag sets a request level tag.
func (c *Client) SetTag(key string, value tags.Value) error { return c.session.SetTag(key, value) }

// SetTimer records a timer with value d and hits hits, overwriting a
// timer with the same tags.
func (c *Client) SetTimer(t tags.Tags, d time.Duration, hits int) (timer.ID, error) {
	return c.session.store.Set(t, d, hits)
}

// AddTimer adds d and hits to the timer with the same tags, creating it
// when missing.
func (c *Client) AddTimer(t tags.Tags, d time.Duration, hits int) (timer.ID, error) {
	return c.session.store.Accumulate(t, d, hits)
}

// Data returns the packet Send would deliver.
func (c *Client) Data(flags Flag) *packet.Packet {
	return c.session.Packet("", c.flags|flags)
}

// Send delivers the packet to every server. The error joins the failures
// of individual servers; servers that accepted the packet are not retried.
func (c *Client) Send(ctx context.Context, flags Flag) error {
	return c.session.Flush(ctx, "", c.flags|flags)
}

// Stats returns the per-server send counters keyed by address.
func (c *Client) Stats() map[string]transport.StatsSnapshot {
	out := make(map[string]transport.StatsSnapshot, len(c.senders))
	for _, u := range c.senders {
		out[u.Addr()] = u.Stats().Snapshot()
	}
	return out
}
