package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/consensus"
)

// maxSyncBlocks bounds how many blocks a single SyncResponse carries,
// so a lagging peer's catch-up request can't be answered with an
// unbounded reply.
const maxSyncBlocks = 500

// queueCapacity sizes the channels routed messages land on before a
// consumer drains them; a message arriving at a full channel is
// dropped, as consensus.Engine does for its own Submit* queues.
const queueCapacity = 4096

// TxSink is the mempool-facing side of routing: everything the
// transport needs to hand off a gossiped transaction.
type TxSink interface {
	AddTransaction(tx chain.Transaction) error
}

// ConsensusReceiver is the consensus-engine-facing side of routing.
// *consensus.Engine satisfies this directly.
type ConsensusReceiver interface {
	SubmitProposal(consensus.Proposal)
	SubmitVote(consensus.Vote)
	SubmitViewChange(consensus.ViewChange)
	SubmitNewView(consensus.NewViewMsg)
}

// Config holds a transport's identity and addressing.
type Config struct {
	SelfID     chain.PubKey
	ListenAddr string
}

// Transport is the node's P2P endpoint: it accepts and dials framed
// TCP connections, gates every one behind a genesis-hash handshake, and
// routes decoded messages into the mempool, the block-sync channel, or
// the consensus engine.
type Transport struct {
	cfg       Config
	log       *zap.Logger
	chain     *chain.Chain
	mempool   TxSink
	consensus ConsensusReceiver

	// TxCh and BlockCh are the two MPSC-style channels routed messages
	// land on, drained by the consumer loops Start launches; consensus
	// messages instead call straight into consensus, since the engine
	// already owns its own internal queues.
	TxCh    chan chain.Transaction
	BlockCh chan *chain.Block

	listener net.Listener

	mu    sync.RWMutex
	peers map[chain.PubKey]*Peer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a transport bound to c's genesis hash; handshakes from
// peers on a different chain are rejected.
func New(cfg Config, log *zap.Logger, c *chain.Chain, mempool TxSink, cons ConsensusReceiver) *Transport {
	return &Transport{
		cfg:       cfg,
		log:       log.Named("network"),
		chain:     c,
		mempool:   mempool,
		consensus: cons,
		TxCh:      make(chan chain.Transaction, queueCapacity),
		BlockCh:   make(chan *chain.Block, queueCapacity),
		peers:     make(map[chain.PubKey]*Peer),
		stopCh:    make(chan struct{}),
	}
}

// SetConsensusReceiver rebinds the consensus-facing side of routing.
// Needed because the consensus engine's constructor takes the
// transport as its Broadcaster, so the two can't both be fully built
// in one step — callers construct the transport with a nil receiver,
// build the engine against it, then bind the engine here before
// Listen/Start.
func (t *Transport) SetConsensusReceiver(cons ConsensusReceiver) {
	t.consensus = cons
}

// Listen starts accepting inbound connections on cfg.ListenAddr.
func (t *Transport) Listen() error {
	ln, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("network: listen on %s: %w", t.cfg.ListenAddr, err)
	}
	t.listener = ln
	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

// Start launches the transport's background consumer and maintenance
// loops: the tx/block channel drains and periodic peer cleanup.
func (t *Transport) Start(peerTimeout time.Duration) {
	t.wg.Add(3)
	go t.consumeTxLoop()
	go t.consumeBlockLoop()
	go t.cleanupLoop(peerTimeout)
}

// Stop closes the listener, every peer connection, and waits for all
// transport goroutines to exit.
func (t *Transport) Stop() {
	close(t.stopCh)
	if t.listener != nil {
		t.listener.Close()
	}
	t.mu.Lock()
	for _, p := range t.peers {
		p.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
				t.log.Warn("accept failed", zap.Error(err))
				return
			}
		}
		go t.acceptConn(conn)
	}
}

func (t *Transport) acceptConn(conn net.Conn) {
	peer, err := t.respondHandshake(conn)
	if err != nil {
		t.log.Debug("inbound handshake failed", zap.Error(err))
		conn.Close()
		return
	}
	t.registerPeer(peer)
}

// Connect dials addr with a 10s timeout, performs the initiating side
// of the handshake, and registers the resulting peer.
func (t *Transport) Connect(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("network: dial %s: %w", addr, err)
	}
	peer, err := t.initiateHandshake(conn, addr)
	if err != nil {
		conn.Close()
		return err
	}
	t.registerPeer(peer)
	return nil
}

func (t *Transport) handshakeMsg() Handshake {
	return Handshake{
		NodeID:      t.cfg.SelfID,
		Version:     protocolVersion,
		Height:      t.chain.Height(),
		GenesisHash: t.chain.GenesisHash(),
	}
}

// initiateHandshake sends first, then waits for the peer's reply — the
// dialing side speaks first, matching the usual client/server framing
// convention and avoiding a handshake deadlock between two symmetric
// peers dialing each other simultaneously.
func (t *Transport) initiateHandshake(conn net.Conn, addr string) (*Peer, error) {
	self := t.handshakeMsg()
	if err := WriteFrame(conn, EncodeEnvelope(MsgHandshake, EncodeHandshake(&self))); err != nil {
		return nil, fmt.Errorf("network: send handshake: %w", err)
	}
	return t.recvHandshake(conn, addr)
}

func (t *Transport) respondHandshake(conn net.Conn) (*Peer, error) {
	peer, err := t.recvHandshake(conn, conn.RemoteAddr().String())
	if err != nil {
		return nil, err
	}
	self := t.handshakeMsg()
	if err := WriteFrame(conn, EncodeEnvelope(MsgHandshake, EncodeHandshake(&self))); err != nil {
		return nil, fmt.Errorf("network: send handshake reply: %w", err)
	}
	return peer, nil
}

func (t *Transport) recvHandshake(conn net.Conn, addr string) (*Peer, error) {
	raw, err := ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("network: read handshake: %w", err)
	}
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.Type != MsgHandshake {
		return nil, fmt.Errorf("network: expected handshake, got %s", env.Type)
	}
	hs, err := DecodeHandshake(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("network: decode handshake: %w", err)
	}
	if hs.GenesisHash != t.chain.GenesisHash() {
		return nil, fmt.Errorf("network: genesis hash mismatch with %s", addr)
	}
	return newPeer(hs.NodeID, addr, conn, t.log), nil
}

func (t *Transport) registerPeer(p *Peer) {
	t.mu.Lock()
	if existing, ok := t.peers[p.ID]; ok {
		existing.Close()
	}
	t.peers[p.ID] = p
	t.mu.Unlock()

	p.wg.Add(2)
	go p.writeLoop()
	go p.readLoop(t.dispatch)
	t.log.Info("peer connected", zap.String("peer", p.ID.String()), zap.String("addr", p.Addr))
}

func (t *Transport) removePeer(id chain.PubKey) {
	t.mu.Lock()
	delete(t.peers, id)
	t.mu.Unlock()
}

// dispatch routes one decoded frame from peer p. Every case here runs
// on p's own read-loop goroutine, so handlers that need to block (none
// currently do) would stall only that one peer's reads.
func (t *Transport) dispatch(p *Peer, env Envelope) {
	switch env.Type {
	case MsgHandshake:
		t.log.Warn("unexpected handshake after connection established", zap.String("peer", p.ID.String()))
	case MsgTx:
		tx, _, err := chain.DecodeTransaction(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed tx", zap.Error(err))
			return
		}
		select {
		case t.TxCh <- tx:
		default:
			t.log.Warn("tx channel full, dropping")
		}
	case MsgBlock:
		block, err := chain.DecodeBlock(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed block", zap.Error(err))
			return
		}
		select {
		case t.BlockCh <- block:
		default:
			t.log.Warn("block channel full, dropping")
		}
	case MsgConsensus:
		cenv, err := DecodeConsensusEnvelope(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed consensus message", zap.Error(err))
			return
		}
		t.routeConsensus(cenv)
	case MsgPeerListReq:
		t.sendPeerList(p)
	case MsgPeerListResp:
		resp, err := DecodePeerListResp(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed peer list", zap.Error(err))
			return
		}
		t.log.Debug("received peer list", zap.Int("count", len(resp.Peers)))
	case MsgBlockRequest:
		req, err := DecodeBlockRequest(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed block request", zap.Error(err))
			return
		}
		t.handleBlockRequest(p, req)
	case MsgBlockResponse:
		resp, err := DecodeBlockResponse(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed block response", zap.Error(err))
			return
		}
		if resp.Found {
			select {
			case t.BlockCh <- resp.Block:
			default:
				t.log.Warn("block channel full, dropping")
			}
		}
	case MsgSyncRequest:
		req, err := DecodeSyncRequest(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed sync request", zap.Error(err))
			return
		}
		t.handleSyncRequest(p, req)
	case MsgSyncResponse:
		resp, err := DecodeSyncResponse(env.Payload)
		if err != nil {
			t.log.Warn("dropping malformed sync response", zap.Error(err))
			return
		}
		for _, b := range resp.Blocks {
			select {
			case t.BlockCh <- b:
			default:
				t.log.Warn("block channel full during sync, dropping remainder")
				return
			}
		}
	default:
		t.log.Warn("dropping frame of unknown type", zap.Any("type", env.Type))
	}
}

func (t *Transport) routeConsensus(env ConsensusEnvelope) {
	switch env.Kind {
	case ConsensusProposal:
		if env.Proposal != nil {
			t.consensus.SubmitProposal(*env.Proposal)
		}
	case ConsensusVote:
		if env.Vote != nil {
			t.consensus.SubmitVote(*env.Vote)
		}
	case ConsensusViewChange:
		if env.ViewChange != nil {
			t.consensus.SubmitViewChange(*env.ViewChange)
		}
	case ConsensusNewView:
		if env.NewView != nil {
			t.consensus.SubmitNewView(*env.NewView)
		}
	}
}

func (t *Transport) handleBlockRequest(p *Peer, req BlockRequest) {
	block, err := t.chain.GetBlockByHash(req.Hash)
	resp := BlockResponse{}
	if err == nil {
		resp.Found = true
		resp.Block = block
	}
	p.Send(MsgBlockResponse, EncodeBlockResponse(&resp))
}

// handleSyncRequest walks back from the current head collecting blocks
// down to req.FromHeight, bounded by maxSyncBlocks, and replies oldest
// first.
func (t *Transport) handleSyncRequest(p *Peer, req SyncRequest) {
	head, err := t.chain.Head()
	if err != nil {
		p.Send(MsgSyncResponse, EncodeSyncResponse(&SyncResponse{}))
		return
	}
	var blocks []*chain.Block
	cur := head
	for len(blocks) < maxSyncBlocks && cur.Header.Height > req.FromHeight {
		blocks = append(blocks, cur)
		if cur.IsGenesis() {
			break
		}
		prev, err := t.chain.GetBlockByHash(cur.Header.PrevHash)
		if err != nil {
			break
		}
		cur = prev
	}
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	p.Send(MsgSyncResponse, EncodeSyncResponse(&SyncResponse{Blocks: blocks}))
}

func (t *Transport) sendPeerList(p *Peer) {
	resp := PeerListResp{Peers: t.GetPeers()}
	p.Send(MsgPeerListResp, EncodePeerListResp(&resp))
}

// GetPeers returns a snapshot of every currently connected peer.
func (t *Transport) GetPeers() []PeerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PeerInfo, 0, len(t.peers))
	for id, p := range t.peers {
		out = append(out, PeerInfo{NodeID: id, Addr: p.Addr})
	}
	return out
}

// CleanupPeers drops every peer whose last received frame is older
// than timeout.
func (t *Transport) CleanupPeers(timeout time.Duration) {
	now := time.Now()
	t.mu.Lock()
	for id, p := range t.peers {
		if now.Sub(p.LastSeen()) > timeout {
			p.Close()
			delete(t.peers, id)
			t.log.Info("dropped stale peer", zap.String("peer", id.String()))
		}
	}
	t.mu.Unlock()
}

func (t *Transport) cleanupLoop(timeout time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.CleanupPeers(timeout)
		}
	}
}

func (t *Transport) consumeTxLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopCh:
			return
		case tx := <-t.TxCh:
			if err := t.mempool.AddTransaction(tx); err != nil {
				t.log.Debug("rejected gossiped tx", zap.Error(err))
			}
		}
	}
}

// consumeBlockLoop appends gossiped or synced blocks that extend the
// current head to the chain; it neither validates them nor applies
// them to state. Anything else (a future block needing intermediate
// ones first, or a stale one) is dropped with a debug log. No code in
// the module sends a SyncRequest, so a multi-block gap stays open.
func (t *Transport) consumeBlockLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopCh:
			return
		case block := <-t.BlockCh:
			if err := t.chain.AppendBlock(block); err != nil {
				t.log.Debug("dropping non-extending block", zap.Uint64("height", block.Header.Height), zap.Error(err))
			}
		}
	}
}

// broadcast fans payload out to every connected peer.
func (t *Transport) broadcast(msgType MsgType, payload []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.peers {
		p.Send(msgType, payload)
	}
}

// BroadcastTransaction gossips tx to every peer.
func (t *Transport) BroadcastTransaction(tx chain.Transaction) {
	t.broadcast(MsgTx, chain.EncodeTransaction(&tx))
}

// BroadcastBlock gossips a committed block to every peer.
func (t *Transport) BroadcastBlock(b *chain.Block) {
	t.broadcast(MsgBlock, chain.EncodeBlock(b))
}

// The four methods below satisfy consensus.Broadcaster.

func (t *Transport) BroadcastProposal(p consensus.Proposal) {
	t.broadcast(MsgConsensus, EncodeConsensusEnvelope(&ConsensusEnvelope{Kind: ConsensusProposal, Proposal: &p}))
}

func (t *Transport) BroadcastVote(v consensus.Vote) {
	t.broadcast(MsgConsensus, EncodeConsensusEnvelope(&ConsensusEnvelope{Kind: ConsensusVote, Vote: &v}))
}

func (t *Transport) BroadcastViewChange(vc consensus.ViewChange) {
	t.broadcast(MsgConsensus, EncodeConsensusEnvelope(&ConsensusEnvelope{Kind: ConsensusViewChange, ViewChange: &vc}))
}

func (t *Transport) BroadcastNewView(nv consensus.NewViewMsg) {
	t.broadcast(MsgConsensus, EncodeConsensusEnvelope(&ConsensusEnvelope{Kind: ConsensusNewView, NewView: &nv}))
}
