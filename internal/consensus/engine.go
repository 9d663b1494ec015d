package consensus

import (
	"crypto/ed25519"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/verifier"
)

// processInterval is how often the engine drains its message queues and
// checks timeouts/leadership — the pipelined-tick idiom the teacher's
// ConsensusEngine.Start used for its single-block proposal loop,
// generalized here to drive the full phase state machine.
const processInterval = 50 * time.Millisecond

// queueCapacity bounds each message channel; once a channel is full,
// further messages are dropped rather than growing it unbounded.
const queueCapacity = 4096

// Broadcaster is the network-facing side of the engine: everything it
// needs to fan proposals and votes out to peers.
type Broadcaster interface {
	BroadcastProposal(Proposal)
	BroadcastVote(Vote)
	BroadcastViewChange(ViewChange)
	BroadcastNewView(NewViewMsg)
}

// MempoolSource is the batch-drain side of the mempool the proposer
// pulls from.
type MempoolSource interface {
	GetTransactionsForBlock(maxCount int, maxGas uint64) []chain.Transaction
	PruneCommitted(committed []chain.Transaction)
}

// StateCommitter is everything the engine needs from the account state
// store: chain.StateApplier's dry-run simulate, used for proposal
// construction and re-validation, plus the one real atomic apply used
// exactly once per block, at commit time.
type StateCommitter interface {
	chain.StateApplier
	ApplyTransactionsAtomic(txs []chain.Transaction) (chain.Hash, error)
}

// SafetyObserver receives passive behavioral observations; a nil
// observer (NopObserver) is a valid, inert default.
type SafetyObserver interface {
	RecordProposal(validator chain.PubKey, valid bool)
	RecordVote(validator chain.PubKey, consistent bool)
	RecordEquivocation(validator chain.PubKey, slot Slot)
	RecordActivity(validator chain.PubKey)
}

// NopObserver discards every observation.
type NopObserver struct{}

func (NopObserver) RecordProposal(chain.PubKey, bool)     {}
func (NopObserver) RecordVote(chain.PubKey, bool)         {}
func (NopObserver) RecordEquivocation(chain.PubKey, Slot) {}
func (NopObserver) RecordActivity(chain.PubKey)           {}

// Config holds the engine's tunables.
type Config struct {
	SelfKey        chain.PubKey
	SelfPriv       ed25519.PrivateKey
	GasLimit       uint64
	MaxTxsPerBlock int
	BaseTimeout    time.Duration // base value multiplied by 1.5^view
}

// Engine is the ccBFT phase state machine. Its mutable state is owned
// exclusively by its own goroutine; every external interaction happens
// through the Submit* channels or the thread-safe accessor methods.
type Engine struct {
	cfg    Config
	log    *zap.Logger
	chain  *chain.Chain
	state  StateCommitter
	pool   MempoolSource
	net    Broadcaster
	safety SafetyObserver
	sigver *verifier.Verifier

	mu         sync.Mutex
	validators *ValidatorSet
	pending    *ValidatorSet // scheduled at next height boundary, nil if none
	cs         State
	deadline   time.Time

	prevoteTally   map[Slot]map[chain.Hash]map[chain.PubKey]struct{}
	precommitTally map[Slot]map[chain.Hash]map[chain.PubKey]struct{}
	viewChanges    map[uint64]map[chain.PubKey]ViewChange
	seenVotes      map[voteKey]chain.Hash
	scratchBlocks  map[chain.Hash]*chain.Block // proposals seen this height, discarded on commit

	proposalCh   chan Proposal
	voteCh       chan Vote
	viewChangeCh chan ViewChange
	newViewCh    chan NewViewMsg
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

type voteKey struct {
	voter chain.PubKey
	slot  Slot
}

// New constructs an engine at the height following the chain's current
// head, over the given initial validator set.
func New(cfg Config, log *zap.Logger, c *chain.Chain, st StateCommitter, pool MempoolSource, net Broadcaster, safety SafetyObserver, initialValidators *ValidatorSet) *Engine {
	if safety == nil {
		safety = NopObserver{}
	}
	height := c.Height()
	e := &Engine{
		cfg:            cfg,
		log:            log.Named("consensus"),
		chain:          c,
		state:          st,
		pool:           pool,
		net:            net,
		safety:         safety,
		sigver:         verifier.New(0),
		validators:     initialValidators,
		cs:             State{Height: height + 1, View: 0, Round: 0, Phase: PhasePropose},
		prevoteTally:   make(map[Slot]map[chain.Hash]map[chain.PubKey]struct{}),
		precommitTally: make(map[Slot]map[chain.Hash]map[chain.PubKey]struct{}),
		viewChanges:    make(map[uint64]map[chain.PubKey]ViewChange),
		seenVotes:      make(map[voteKey]chain.Hash),
		scratchBlocks:  make(map[chain.Hash]*chain.Block),
		proposalCh:     make(chan Proposal, queueCapacity),
		voteCh:         make(chan Vote, queueCapacity),
		viewChangeCh:   make(chan ViewChange, queueCapacity),
		newViewCh:      make(chan NewViewMsg, queueCapacity),
		stopCh:         make(chan struct{}),
	}
	e.deadline = time.Now().Add(e.phaseTimeout(0))
	return e
}

// Start launches the engine's processing goroutine.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.loop()
}

// Stop signals the processing goroutine to exit and waits for it.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// SubmitProposal, SubmitVote, SubmitViewChange, and SubmitNewView feed
// externally-received messages into the engine's queues. They never
// block: when a queue already holds queueCapacity messages, the new
// message is dropped and a warning is logged.
func (e *Engine) SubmitProposal(p Proposal) {
	select {
	case e.proposalCh <- p:
	default:
		e.log.Warn("proposal queue full, dropping")
	}
}

func (e *Engine) SubmitVote(v Vote) {
	select {
	case e.voteCh <- v:
	default:
		e.log.Warn("vote queue full, dropping")
	}
}

func (e *Engine) SubmitViewChange(vc ViewChange) {
	select {
	case e.viewChangeCh <- vc:
	default:
		e.log.Warn("view change queue full, dropping")
	}
}

func (e *Engine) SubmitNewView(nv NewViewMsg) {
	select {
	case e.newViewCh <- nv:
	default:
		e.log.Warn("new view queue full, dropping")
	}
}

// State returns a copy of the engine's current consensus state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cs
}

// UpdateValidatorSet schedules next to take effect at the next height
// boundary; within the current height the active set is immutable.
func (e *Engine) UpdateValidatorSet(next *ValidatorSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = next
}

func (e *Engine) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(processInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick drains pending messages in priority order (proposals, votes,
// view-changes, new-views, per §5's ordering guarantee), attempts to
// propose if this node leads the current (height, view), and checks
// the phase deadline.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drainProposalsLocked()
	e.drainVotesLocked()
	e.drainViewChangesLocked()
	e.drainNewViewsLocked()
	e.attemptProposeLocked()
	e.checkTimeoutLocked()
}

func (e *Engine) drainProposalsLocked() {
	for {
		select {
		case p := <-e.proposalCh:
			e.handleProposalLocked(p)
		default:
			return
		}
	}
}

func (e *Engine) drainVotesLocked() {
	for {
		select {
		case v := <-e.voteCh:
			e.handleVoteLocked(v)
		default:
			return
		}
	}
}

func (e *Engine) drainViewChangesLocked() {
	for {
		select {
		case vc := <-e.viewChangeCh:
			e.handleViewChangeLocked(vc)
		default:
			return
		}
	}
}

func (e *Engine) drainNewViewsLocked() {
	for {
		select {
		case nv := <-e.newViewCh:
			e.handleNewViewLocked(nv)
		default:
			return
		}
	}
}

// phaseTimeout applies the bounded exponential backoff of §4.6.5:
// base * 1.5^view.
func (e *Engine) phaseTimeout(view uint64) time.Duration {
	backoff := 1.0
	for i := uint64(0); i < view; i++ {
		backoff *= 1.5
	}
	return time.Duration(float64(e.cfg.BaseTimeout) * backoff)
}
