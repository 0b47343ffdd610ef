package continuum

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftline/continuum/canonical"
	"github.com/driftline/continuum/clock"
	"github.com/driftline/continuum/identity"
	"github.com/driftline/continuum/memory"
)

// Metric names the engine itself writes into manifests.
const (
	// MetricAutoClosed marks a manifest produced by BeginEpoch implicitly
	// closing a still-active epoch.
	MetricAutoClosed = "auto_closed"

	// MetricWorkFailed marks a manifest whose WithEpoch work callback
	// returned an error or panicked.
	MetricWorkFailed = "work_failed"
)

// Continuum orchestrates the epoch lifecycle over one memory store and
// one identity manager. Construct one instance per owning process or
// tenant and pass references explicitly; there are no package-level
// defaults.
//
// Thread-safety: the epoch state machine is guarded by a mutex, so
// Begin/End/WithEpoch may be called from multiple goroutines, but the
// underlying store still assumes a single logical writer - interleaving
// epoch operations with concurrent RememberEvent calls from elsewhere
// needs external serialization.
type Continuum struct {
	store *memory.Store
	id    *identity.Manager
	clk   clock.Clock
	log   *slog.Logger

	mu              sync.Mutex
	activeEpoch     string
	activeStart     int64
	activeManifesto string
	lastEpochID     string
	skipped         int
}

// Option configures a Continuum.
type Option func(*Continuum)

// WithClock sets the clock used for epoch start/end times.
// Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(ct *Continuum) {
		ct.clk = c
	}
}

// WithLogger sets the logger for degraded-state warnings.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ct *Continuum) {
		ct.log = l
	}
}

// New creates a Continuum over the given store and identity. The id of
// the most recently persisted manifest is recovered from history once at
// construction and cached thereafter, so EndEpoch never rescans.
func New(store *memory.Store, id *identity.Manager, opts ...Option) (*Continuum, error) {
	if store == nil {
		return nil, fmt.Errorf("continuum: store must not be nil")
	}
	if id == nil {
		return nil, fmt.Errorf("continuum: identity must not be nil")
	}

	ct := &Continuum{
		store: store,
		id:    id,
		clk:   clock.System{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ct)
	}

	if last, ok := ct.Latest(); ok {
		ct.lastEpochID = last.EpochID
	}
	return ct, nil
}

// BeginEpoch opens a new epoch and returns its deterministic id.
//
// If an epoch is already active it is implicitly closed first; the
// resulting manifest carries the auto_closed metric and a warning is
// logged, so the implicit transition stays visible in the trail.
//
// A non-empty manifesto payload is stored as a content-addressed blob;
// its digest is recorded in the epoch_begin event and in the closing
// manifest.
func (ct *Continuum) BeginEpoch(manifesto []byte) (string, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.activeEpoch != "" {
		ct.log.Warn("implicitly closing active epoch",
			"epoch_id", ct.activeEpoch)
		if _, err := ct.endEpochLocked(map[string]float64{MetricAutoClosed: 1}); err != nil {
			return "", fmt.Errorf("continuum: auto-close epoch: %w", err)
		}
	}

	start := ct.clk.NowMS()
	epochID := EpochID(start)

	var manifestoDigest string
	if len(manifesto) > 0 {
		digest, err := ct.store.PutBlob(manifesto)
		if err != nil {
			return "", fmt.Errorf("continuum: store manifesto: %w", err)
		}
		manifestoDigest = digest
	}

	value, err := json.Marshal(beginRecord{
		EpochID:         epochID,
		ManifestoDigest: manifestoDigest,
		StartMS:         start,
	})
	if err != nil {
		return "", fmt.Errorf("continuum: encode begin event: %w", err)
	}
	if _, err := ct.store.RememberEvent(ct.id.DID(), EventEpochBegin, epochID, value); err != nil {
		return "", err
	}

	ct.activeEpoch = epochID
	ct.activeStart = start
	ct.activeManifesto = manifestoDigest
	return epochID, nil
}

// EndEpoch closes the active epoch: it captures the end time and the
// store's current head hash, links to the previous manifest, signs the
// canonical encoding, and appends the manifest as an epoch_end event.
// Returns ErrNoActiveEpoch when idle.
func (ct *Continuum) EndEpoch(metrics map[string]float64) (EpochManifest, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.endEpochLocked(metrics)
}

func (ct *Continuum) endEpochLocked(metrics map[string]float64) (EpochManifest, error) {
	if ct.activeEpoch == "" {
		return EpochManifest{}, ErrNoActiveEpoch
	}

	m := EpochManifest{
		EpochID:         ct.activeEpoch,
		ParentID:        ct.lastEpochID,
		HeadHash:        ct.store.HeadHash(),
		ManifestoDigest: ct.activeManifesto,
		Metrics:         copyMetrics(metrics),
		StartMS:         ct.activeStart,
		EndMS:           ct.clk.NowMS(),
		DID:             ct.id.DID(),
	}

	message, err := SigningBytes(m)
	if err != nil {
		return EpochManifest{}, err
	}
	m.SigHex = canonical.EncodeHex(ct.id.Sign(message))

	value, err := json.Marshal(m)
	if err != nil {
		return EpochManifest{}, fmt.Errorf("continuum: encode manifest: %w", err)
	}
	if _, err := ct.store.RememberEvent(ct.id.DID(), EventEpochEnd, m.EpochID, value); err != nil {
		// Leave the epoch active: the manifest never became durable, so
		// the caller may retry (producing a fresh end time and signature).
		return EpochManifest{}, err
	}

	ct.lastEpochID = m.EpochID
	ct.activeEpoch = ""
	ct.activeStart = 0
	ct.activeManifesto = ""
	return m, nil
}

// WithEpoch brackets work in an epoch: begin, run, end.
//
// A work error (or panic, converted to an error) does not abort the
// checkpoint - the epoch still closes so the trail stays linear - but it
// is surfaced twice: as the work_failed metric on the manifest and as the
// returned error. metricsFn, if non-nil, supplies the caller's metrics
// after work completes.
func (ct *Continuum) WithEpoch(manifesto []byte, work func() error, metricsFn func() map[string]float64) (string, EpochManifest, error) {
	epochID, err := ct.BeginEpoch(manifesto)
	if err != nil {
		return "", EpochManifest{}, err
	}

	workErr := runWork(work)

	metrics := map[string]float64{}
	if metricsFn != nil {
		for k, v := range metricsFn() {
			metrics[k] = v
		}
	}
	if workErr != nil {
		metrics[MetricWorkFailed] = 1
		ct.log.Warn("epoch work failed", "epoch_id", epochID, "error", workErr)
	}

	manifest, endErr := ct.EndEpoch(metrics)
	if endErr != nil {
		return epochID, EpochManifest{}, endErr
	}
	return epochID, manifest, workErr
}

// runWork executes the callback, converting a panic into an error so a
// misbehaving workload cannot leave the epoch open.
func runWork(work func() error) (err error) {
	if work == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("continuum: work panicked: %v", r)
		}
	}()
	return work()
}

// Latest returns the most recently persisted manifest, if any.
func (ct *Continuum) Latest() (EpochManifest, bool) {
	manifests := ct.History(1)
	if len(manifests) == 0 {
		return EpochManifest{}, false
	}
	return manifests[0], true
}

// History returns persisted manifests oldest-first. A positive limit
// truncates to the most recent manifests; limit <= 0 returns all.
//
// Malformed epoch_end records are skipped, counted (SkippedManifests),
// and logged - the scan always proceeds past them.
func (ct *Continuum) History(limit int) []EpochManifest {
	var manifests []EpochManifest
	skipped := 0
	for _, ev := range ct.store.Events() {
		if ev.Type != EventEpochEnd {
			continue
		}
		m, err := ParseManifest(ev.Value)
		if err != nil {
			skipped++
			ct.log.Warn("skipping malformed manifest", "key", ev.Key, "error", err)
			continue
		}
		manifests = append(manifests, m)
	}

	ct.mu.Lock()
	ct.skipped = skipped
	ct.mu.Unlock()

	if limit > 0 && len(manifests) > limit {
		manifests = manifests[len(manifests)-limit:]
	}
	return manifests
}

// ActiveEpoch returns the id of the active epoch, or "" when idle.
func (ct *Continuum) ActiveEpoch() string {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.activeEpoch
}

// SkippedManifests reports how many malformed manifests the most recent
// history scan skipped. The count describes the persisted log's state,
// so repeated scans over an unchanged log report the same number.
func (ct *Continuum) SkippedManifests() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.skipped
}

func copyMetrics(metrics map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		out[k] = v
	}
	return out
}
