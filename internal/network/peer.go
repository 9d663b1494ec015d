package network

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
)

// outboxCapacity bounds a peer's pending-write queue; once it is full,
// Send drops each new frame rather than blocking the broadcaster.
const outboxCapacity = 1024

// Peer is one connected remote node: a live net.Conn plus the
// goroutines that drain it in each direction. Modeled on the teacher's
// per-peer processor goroutine, generalized from an in-memory channel
// relay to a real framed TCP connection.
type Peer struct {
	ID   chain.PubKey
	Addr string

	conn    net.Conn
	log     *zap.Logger
	outbox  chan []byte
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Once

	mu       sync.Mutex
	lastSeen time.Time
	height   uint64
}

func newPeer(id chain.PubKey, addr string, conn net.Conn, log *zap.Logger) *Peer {
	return &Peer{
		ID:       id,
		Addr:     addr,
		conn:     conn,
		log:      log,
		outbox:   make(chan []byte, outboxCapacity),
		stopCh:   make(chan struct{}),
		lastSeen: time.Now(),
	}
}

// LastSeen reports the last time a frame was received from this peer.
func (p *Peer) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// Send enqueues an envelope for the write loop; it never blocks past
// outboxCapacity, so one slow peer can't stall every other broadcast.
func (p *Peer) Send(t MsgType, payload []byte) {
	frame := EncodeEnvelope(t, payload)
	select {
	case p.outbox <- frame:
	default:
		p.log.Warn("peer outbox full, dropping frame", zap.String("peer", p.ID.String()), zap.Stringer("type", t))
	}
}

func (p *Peer) writeLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.outbox:
			if err := WriteFrame(p.conn, frame); err != nil {
				p.log.Debug("peer write failed, closing", zap.String("peer", p.ID.String()), zap.Error(err))
				p.Close()
				return
			}
		}
	}
}

// readLoop pulls frames off the wire and dispatches them through
// dispatch until the connection errors or Close is called. A peer that
// sends nothing for 30s hits the read deadline and is closed.
func (p *Peer) readLoop(dispatch func(*Peer, Envelope)) {
	defer p.wg.Done()
	for {
		_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		raw, err := ReadFrame(p.conn)
		if err != nil {
			p.log.Debug("peer read failed, closing", zap.String("peer", p.ID.String()), zap.Error(err))
			p.Close()
			return
		}
		p.touch()
		env, err := DecodeEnvelope(raw)
		if err != nil {
			p.log.Warn("dropping malformed frame", zap.String("peer", p.ID.String()), zap.Error(err))
			continue
		}
		dispatch(p, env)
	}
}

// Close shuts down the connection and both loop goroutines. Safe to
// call more than once and from either loop.
func (p *Peer) Close() {
	p.closeMu.Do(func() {
		close(p.stopCh)
		p.conn.Close()
	})
}
