package srm

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// ErrTimeout is returned when the registry controller does not answer
// within Client's timeout (spec.md §5's "semaTake inside ... SRM waits
// for a reply").
var ErrTimeout = errors.New("srm: no reply within timeout")

// defaultTimeout matches trdp_serviceRegistry.h's TTDB_SERVICE_*_REQ_TO
// (3s) for every request/reply opcode.
const defaultTimeout = 3 * time.Second

// MD comIds of the service-registry telegrams, from
// trdp_serviceRegistry.h.
const (
	ComIdServiceReadReq = 112 // TTDB_SERVICE_READ_REQ: list
	ComIdService        = 113 // TTDB_SERVICE: add request/reply, update notify
	ComIdServiceDelReq  = 114 // TTDB_SERVICE_DEL_REQ: delete
)

// SendFunc issues an MD request for payload on comId against the local
// controller and returns the session ID that will carry the eventual
// reply; the session package owns the actual MD transport.
type SendFunc func(comId uint32, payload []byte) (packet.SessionID, error)

// Client is the SRM client of spec.md §4.8 C8.
type Client struct {
	logger  *log.Entry
	timeout time.Duration

	mu      sync.Mutex
	send    SendFunc
	pending map[packet.SessionID]chan []byte
}

// NewClient creates an SRM client with the given reply timeout (0 uses
// the 3s default from trdp_serviceRegistry.h).
func NewClient(timeout time.Duration, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("service", "srm")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{logger: logger, timeout: timeout, pending: make(map[packet.SessionID]chan []byte)}
}

// SetSender installs the MD transport hook.
func (c *Client) SetSender(fn SendFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send = fn
}

// Deliver hands a reply payload to the request waiting on id, the
// session package's callback target when an MD reply session completes.
func (c *Client) Deliver(id packet.SessionID, payload []byte) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (c *Client) roundTrip(comId uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	sender := c.send
	c.mu.Unlock()
	if sender == nil {
		return nil, errors.New("srm: no MD sender configured")
	}

	id, err := sender(comId, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	select {
	case reply := <-ch:
		return reply, nil
	case <-time.After(c.timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.logger.Warn("srm: request timed out")
		return nil, ErrTimeout
	}
}

// AddServices requests the controller register every entry (comId 113,
// TTDB_SERVICE_ADD_REQ) and returns the registry's confirmed copies
// (instance IDs may have been assigned server-side).
func (c *Client) AddServices(entries []ServiceEntry) ([]ServiceEntry, error) {
	reply, err := c.roundTrip(ComIdService, marshalRequest(entries))
	if err != nil {
		return nil, err
	}
	return unmarshalEntries(reply)
}

// UpdateServices sends an update notify (comId 113, TTDB_SERVICE_UPD_NOTIFY):
// fire-and-forget per trdp_serviceRegistry.h, no reply is awaited.
func (c *Client) UpdateServices(entries []ServiceEntry) error {
	c.mu.Lock()
	sender := c.send
	c.mu.Unlock()
	if sender == nil {
		return errors.New("srm: no MD sender configured")
	}
	_, err := sender(ComIdService, marshalRequest(entries))
	return err
}

// DeleteServices requests removal of the given service IDs (comId 114,
// TTDB_SERVICE_DEL_REQ).
func (c *Client) DeleteServices(ids []uint32) error {
	_, err := c.roundTrip(ComIdServiceDelReq, marshalIDs(ids))
	return err
}

// ListServices requests the controller's full registry (comId 112,
// TTDB_SERVICE_READ_REQ).
func (c *Client) ListServices() ([]ServiceEntry, error) {
	reply, err := c.roundTrip(ComIdServiceReadReq, nil)
	if err != nil {
		return nil, err
	}
	return unmarshalEntries(reply)
}
