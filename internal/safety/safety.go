// Package safety is the consensus engine's passive behavioral monitor:
// it never influences a vote, a proposal, or a commit — it only watches
// what validators do and raises alerts when their behavior degrades or
// turns malicious, grounded in the same passive-observer role as the
// original node's safety subsystem.
package safety

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/consensus"
)

// AlertType classifies what a Monitor observed going wrong.
type AlertType int

const (
	AlertInvalidProposal AlertType = iota
	AlertConsistencyViolation
	AlertDoubleVoting
	AlertUnresponsive
	AlertPerformanceDegradation
)

func (a AlertType) String() string {
	switch a {
	case AlertInvalidProposal:
		return "invalid_proposal"
	case AlertConsistencyViolation:
		return "consistency_violation"
	case AlertDoubleVoting:
		return "double_voting"
	case AlertUnresponsive:
		return "unresponsive"
	case AlertPerformanceDegradation:
		return "performance_degradation"
	default:
		return "unknown"
	}
}

// AlertSeverity ranks how urgently an Alert needs attention.
type AlertSeverity int

const (
	SeverityLow AlertSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Alert is one raised observation about a validator's behavior.
type Alert struct {
	Validator chain.PubKey
	Type      AlertType
	Severity  AlertSeverity
	Timestamp time.Time
	Details   string
}

// ValidatorMetrics accumulates one validator's observed behavior over
// the monitor's lifetime.
type ValidatorMetrics struct {
	ProposalsMade    uint64
	ValidProposals   uint64
	VotesCast        uint64
	ConsistentVotes  uint64
	LastActivity     time.Time
	EquivocationSeen bool
}

// validProposalRatioThreshold, consistentVoteRatioThreshold, and
// unresponsiveWindow are
// the exact thresholds a complete node's safety subsystem alerts on.
const (
	validProposalRatioThreshold  = 0.8
	consistentVoteRatioThreshold = 0.9
	unresponsiveWindow           = 5 * time.Minute
	minSampleSize                = 5 // avoid alerting on a single early failure
)

// RecoveryHook is invoked for every Critical alert; alerts of lower
// severity never reach it.
type RecoveryHook func(Alert)

// Monitor implements consensus.SafetyObserver, tracking per-validator
// metrics and emitting Alerts through alertCh. It never mutates
// consensus state: Record* calls are pure bookkeeping.
type Monitor struct {
	log     *zap.Logger
	hook    RecoveryHook
	alertCh chan Alert

	mu      sync.Mutex
	metrics map[chain.PubKey]*ValidatorMetrics
}

var _ consensus.SafetyObserver = (*Monitor)(nil)

// New constructs a Monitor. hook may be nil, in which case Critical
// alerts are only logged and placed on AlertCh.
func New(log *zap.Logger, hook RecoveryHook) *Monitor {
	return &Monitor{
		log:     log.Named("safety"),
		hook:    hook,
		alertCh: make(chan Alert, 256),
		metrics: make(map[chain.PubKey]*ValidatorMetrics),
	}
}

// AlertCh streams every alert raised, for a metrics exporter or log
// sink to consume.
func (m *Monitor) AlertCh() <-chan Alert { return m.alertCh }

func (m *Monitor) entryLocked(v chain.PubKey) *ValidatorMetrics {
	e, ok := m.metrics[v]
	if !ok {
		e = &ValidatorMetrics{}
		m.metrics[v] = e
	}
	return e
}

// RecordProposal logs a proposal's validity and raises
// AlertInvalidProposal once the running valid-proposal ratio drops
// below threshold on a large enough sample.
func (m *Monitor) RecordProposal(validator chain.PubKey, valid bool) {
	m.mu.Lock()
	e := m.entryLocked(validator)
	e.ProposalsMade++
	if valid {
		e.ValidProposals++
	}
	ratio := float64(e.ValidProposals) / float64(e.ProposalsMade)
	made := e.ProposalsMade
	m.mu.Unlock()

	if made >= minSampleSize && ratio < validProposalRatioThreshold {
		m.raise(Alert{
			Validator: validator,
			Type:      AlertInvalidProposal,
			Severity:  SeverityHigh,
			Details:   "valid proposal ratio below threshold",
		})
	}
}

// RecordVote logs a vote's consistency and raises
// AlertConsistencyViolation once the running ratio drops below
// threshold on a large enough sample.
func (m *Monitor) RecordVote(validator chain.PubKey, consistent bool) {
	m.mu.Lock()
	e := m.entryLocked(validator)
	e.VotesCast++
	if consistent {
		e.ConsistentVotes++
	}
	ratio := float64(e.ConsistentVotes) / float64(e.VotesCast)
	cast := e.VotesCast
	m.mu.Unlock()

	if cast >= minSampleSize && ratio < consistentVoteRatioThreshold {
		m.raise(Alert{
			Validator: validator,
			Type:      AlertConsistencyViolation,
			Severity:  SeverityMedium,
			Details:   "consistent vote ratio below threshold",
		})
	}
}

// RecordEquivocation immediately raises a Critical AlertDoubleVoting:
// equivocation is unambiguous malicious or badly-faulty behavior,
// unlike the ratio-based alerts above which tolerate noise.
func (m *Monitor) RecordEquivocation(validator chain.PubKey, slot consensus.Slot) {
	m.mu.Lock()
	e := m.entryLocked(validator)
	e.EquivocationSeen = true
	m.mu.Unlock()

	m.raise(Alert{
		Validator: validator,
		Type:      AlertDoubleVoting,
		Severity:  SeverityCritical,
		Details:   "validator signed two different blocks for the same slot",
	})
}

// RecordActivity timestamps the validator's most recent observed
// message, used to detect Unresponsive validators.
func (m *Monitor) RecordActivity(validator chain.PubKey) {
	m.mu.Lock()
	e := m.entryLocked(validator)
	e.LastActivity = time.Now()
	m.mu.Unlock()
}

// CheckUnresponsive scans every tracked validator for one whose last
// activity exceeds unresponsiveWindow, raising AlertUnresponsive for
// each. Intended to be called periodically by the node's maintenance
// loop rather than driven by consensus events directly.
func (m *Monitor) CheckUnresponsive(now time.Time) {
	m.mu.Lock()
	var stale []chain.PubKey
	for v, e := range m.metrics {
		if e.LastActivity.IsZero() {
			continue
		}
		if now.Sub(e.LastActivity) > unresponsiveWindow {
			stale = append(stale, v)
		}
	}
	m.mu.Unlock()

	for _, v := range stale {
		m.raise(Alert{
			Validator: v,
			Type:      AlertUnresponsive,
			Severity:  SeverityMedium,
			Details:   "no activity observed within window",
		})
	}
}

// Snapshot returns a copy of one validator's metrics.
func (m *Monitor) Snapshot(v chain.PubKey) ValidatorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.metrics[v]; ok {
		return *e
	}
	return ValidatorMetrics{}
}

// RaisePerformanceDegradation reports a sustained high confirmation
// latency observed elsewhere (the adaptive package's PerformanceMonitor
// tracks the rolling mean); kept as a thin public entry point since
// Monitor, not its caller, owns alert delivery and the recovery hook.
func (m *Monitor) RaisePerformanceDegradation(validator chain.PubKey, details string) {
	m.raise(Alert{Validator: validator, Type: AlertPerformanceDegradation, Severity: SeverityLow, Details: details})
}

// Snapshots returns a copy of every tracked validator's metrics,
// matching the node's safety_status() collaborator contract.
func (m *Monitor) Snapshots() map[chain.PubKey]ValidatorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[chain.PubKey]ValidatorMetrics, len(m.metrics))
	for v, e := range m.metrics {
		out[v] = *e
	}
	return out
}

func (m *Monitor) raise(a Alert) {
	a.Timestamp = time.Now()
	m.log.Warn("safety alert",
		zap.String("validator", a.Validator.String()),
		zap.String("type", a.Type.String()),
		zap.String("severity", a.Severity.String()),
		zap.String("details", a.Details),
	)
	select {
	case m.alertCh <- a:
	default:
		m.log.Warn("alert channel full, dropping", zap.String("type", a.Type.String()))
	}
	if a.Severity == SeverityCritical && m.hook != nil {
		m.hook(a)
	}
}
