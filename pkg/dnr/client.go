package dnr

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	trdp "github.com/tallowtrack/gotrdp"
)

// ErrTimeout is returned when no TCN-DNS/DNS answer arrives in time,
// mirroring spec.md §7's UNRESOLVED_ERR.
var ErrTimeout = errors.New("dnr: resolution timed out")

// ErrUnresolved is returned when an answer arrived but did not cover
// the requested URI.
var ErrUnresolved = errors.New("dnr: uri not resolved")

// SendFunc issues a batched TCN-DNS request for uris over the MD
// transport; the caller (pkg/session) owns the actual socket/session.
type SendFunc func(uris []string) error

// Client is the DNR client of spec.md §4.7 C7. It is transport-agnostic:
// the session package wires SetSender to an MD request call and routes
// replies back in through Deliver.
type Client struct {
	cache   *Cache
	logger  *log.Entry
	timeout time.Duration

	mu      sync.Mutex
	send    SendFunc
	stdDNS  bool
	waiters []chan []Entry
}

// NewClient creates a DNR client with the given TCN-DNS/semaphore wait
// timeout (spec.md's `REQ_TO_US`).
func NewClient(timeout time.Duration, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("service", "dnr")
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Client{cache: NewCache(), logger: logger, timeout: timeout}
}

// Cache exposes the underlying entry table (e.g. for LoadHostsFile).
func (c *Client) Cache() *Cache { return c.cache }

// SetSender installs the TCN-DNS transport hook. Without one, UriToAddr
// falls back to standard DNS when EnableStandardDNS was called.
func (c *Client) SetSender(fn SendFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send = fn
}

// EnableStandardDNS turns on the classic DNS `A`-query fallback used
// when no TCN-DNS server is configured (spec.md §4.7 step 4).
func (c *Client) EnableStandardDNS(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stdDNS = enable
}

// UriToAddr implements spec.md §4.7's uri_to_addr: dotted-IP shortcut,
// cache lookup, then a TCN-DNS/DNS round trip on a miss or stale entry.
func (c *Client) UriToAddr(uri string, topo trdp.Topo) (net.IP, error) {
	if ip := net.ParseIP(uri); ip != nil {
		return ip, nil
	}

	if e, ok := c.cache.Lookup(uri); ok && e.Fresh(topo) {
		return trdp.Uint32ToIP(e.IP), nil
	}

	c.mu.Lock()
	sender := c.send
	useStdDNS := c.stdDNS
	c.mu.Unlock()

	if sender != nil {
		return c.resolveTCNDNS(uri, topo, sender)
	}
	if useStdDNS {
		return c.resolveStandardDNS(uri)
	}
	return nil, ErrUnresolved
}

// BuildRequest batches uri plus every cache entry the current topo has
// made stale, so one outgoing TCN-DNS round trip refreshes many
// entries at once (spec.md §4.7 "Batching").
func (c *Client) BuildRequest(uri string, topo trdp.Topo) []string {
	stale := c.cache.Stale(topo)
	for _, s := range stale {
		if s == uri {
			return stale
		}
	}
	return append(stale, uri)
}

func (c *Client) resolveTCNDNS(uri string, topo trdp.Topo, sender SendFunc) (net.IP, error) {
	ch := make(chan []Entry, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	if err := sender(c.BuildRequest(uri, topo)); err != nil {
		c.removeWaiter(ch)
		return nil, err
	}

	select {
	case answers := <-ch:
		for _, a := range answers {
			c.cache.Upsert(a)
		}
		for _, a := range answers {
			if a.URI == uri {
				return trdp.Uint32ToIP(a.IP), nil
			}
		}
		return nil, ErrUnresolved
	case <-time.After(c.timeout):
		c.removeWaiter(ch)
		c.logger.WithField("uri", uri).Warn("dnr: no TCN-DNS answer, timed out")
		return nil, ErrTimeout
	}
}

func (c *Client) removeWaiter(target chan []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.waiters {
		if ch == target {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Deliver hands a TCN-DNS reply's decoded answers to every outstanding
// waiter, the channel-based analogue of the teacher's LSSMaster.Handle
// feeding WaitForResponse.
func (c *Client) Deliver(answers []Entry) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- answers:
		default:
		}
	}
}

func (c *Client) resolveStandardDNS(uri string) (net.IP, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", uri)
	if err != nil || len(ips) == 0 {
		return nil, ErrUnresolved
	}
	ip := ips[0].To4()
	c.cache.Upsert(Entry{URI: uri, IP: trdp.IPToUint32(ip)})
	return ip, nil
}
