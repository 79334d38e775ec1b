package ttdb

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/packet"
)

// ErrTimeout is returned when the controller does not answer an MD
// request within Client's timeout.
var ErrTimeout = errors.New("ttdb: no reply within timeout")

// defaultTimeout matches iec61375-2-3.h's *_REQ_TO_US (3s) across every
// TTDB request/reply comId pair.
const defaultTimeout = 3 * time.Second

// SendFunc issues an MD request carrying payload under comId and
// returns the session ID that will carry the eventual reply.
type SendFunc func(comId uint32, payload []byte) (packet.SessionID, error)

// Client is the TTDB client of spec.md §4.8 C9.
type Client struct {
	logger  *log.Entry
	timeout time.Duration
	cache   *Cache

	mu      sync.Mutex
	send    SendFunc
	pending map[packet.SessionID]chan []byte
}

// NewClient creates a TTDB client with the given MD reply timeout (0
// uses the 3s iec61375-2-3.h default).
func NewClient(timeout time.Duration, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("service", "ttdb")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		logger:  logger,
		timeout: timeout,
		cache:   NewCache(),
		pending: make(map[packet.SessionID]chan []byte),
	}
}

// Cache exposes the underlying directory cache (e.g. for tests or
// direct PD100 wiring via OnStatus).
func (c *Client) Cache() *Cache { return c.cache }

// SetSender installs the MD transport hook.
func (c *Client) SetSender(fn SendFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send = fn
}

// Deliver hands a reply payload to the request waiting on id.
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

// OnStatus feeds a decoded PD100 TTDB_STATUS frame into the cache
// (spec.md's "cache refreshed on PD100 TTDB_STATUS").
func (c *Client) OnStatus(payload []byte) error {
	status, err := decodeStatus(payload)
	if err != nil {
		return err
	}
	c.cache.SetStatus(status)
	return nil
}

// OnOpTrainDirectoryPush feeds a TTDB_OP_DIR_INFO (comId 101) MD
// notification into the cache, the other refresh path spec.md allows
// alongside PD100 and an explicit request.
func (c *Client) OnOpTrainDirectoryPush(payload []byte) error {
	dir, err := decodeOpTrainDirectory(payload)
	if err != nil {
		return err
	}
	c.cache.SetOpTrainDirectory(dir)
	return nil
}

func (c *Client) roundTrip(comId uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	sender := c.send
	c.mu.Unlock()
	if sender == nil {
		return nil, errors.New("ttdb: no MD sender configured")
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
		c.logger.WithField("comId", comId).Warn("ttdb: request timed out")
		return nil, ErrTimeout
	}
}

// GetOwnIds returns this device's own device/vehicle/consist identity.
// It never issues an MD request: own identity only ever arrives via the
// PD100 TTDB_STATUS push (spec.md's get_own_ids).
func (c *Client) GetOwnIds() (OwnIds, error) {
	return c.cache.OwnIds()
}

// GetConsistInfo answers get_consist_info(consistId), from cache when
// fresh for topo or else via comId 104/105 (TTDB_STAT_CST_REQ/REP).
func (c *Client) GetConsistInfo(consistId string, topo trdp.Topo) (ConsistInfo, error) {
	if info, ok := c.cache.ConsistInfo(consistId, topo); ok {
		return info, nil
	}
	reply, err := c.roundTrip(ComIdConsistInfoReq, []byte(consistId))
	if err != nil {
		return ConsistInfo{}, err
	}
	info, err := decodeConsistInfo(reply)
	if err != nil {
		return ConsistInfo{}, err
	}
	c.cache.SetConsistInfo(info)
	return info, nil
}

// GetTrainDirectory answers get_train_directory, from cache when fresh
// for topo or else via comId 102/103 (TTDB_TRN_DIR_REQ/REP).
func (c *Client) GetTrainDirectory(topo trdp.Topo) (TrainDirectory, error) {
	if dir, ok := c.cache.TrainDirectory(topo); ok {
		return dir, nil
	}
	reply, err := c.roundTrip(ComIdTrainDirReq, nil)
	if err != nil {
		return TrainDirectory{}, err
	}
	dir, err := decodeTrainDirectory(reply)
	if err != nil {
		return TrainDirectory{}, err
	}
	c.cache.SetTrainDirectory(dir)
	return dir, nil
}

// GetOpTrainDirectory answers get_op_train_directory, from cache when
// fresh for topo (kept current either by an OnOpTrainDirectoryPush
// notification or here; PD100 does not update it) or else via comId
// 108/109 (TTDB_OP_DIR_INFO_REQ/REP).
func (c *Client) GetOpTrainDirectory(topo trdp.Topo) (OpTrainDirectory, error) {
	if dir, ok := c.cache.OpTrainDirectory(topo); ok {
		return dir, nil
	}
	reply, err := c.roundTrip(ComIdOpTrainDirReq, nil)
	if err != nil {
		return OpTrainDirectory{}, err
	}
	dir, err := decodeOpTrainDirectory(reply)
	if err != nil {
		return OpTrainDirectory{}, err
	}
	c.cache.SetOpTrainDirectory(dir)
	return dir, nil
}

// GetNetworkDirectory answers get_network_directory, from cache when
// fresh for topo or else via comId 106/107 (TTDB_NET_DIR_REQ/REP).
func (c *Client) GetNetworkDirectory(topo trdp.Topo) (NetworkDirectory, error) {
	if dir, ok := c.cache.NetworkDirectory(topo); ok {
		return dir, nil
	}
	reply, err := c.roundTrip(ComIdNetworkDirReq, nil)
	if err != nil {
		return NetworkDirectory{}, err
	}
	dir, err := decodeNetworkDirectory(reply)
	if err != nil {
		return NetworkDirectory{}, err
	}
	c.cache.SetNetworkDirectory(dir)
	return dir, nil
}
