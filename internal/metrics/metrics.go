package metrics

import (
	"sync/atomic"
	"time"
)

// ID identifies a counter or histogram.
type ID uint16

const (
	LoginSuccess ID = iota
	LoginFailure
	LoginLocked
	LoginRateLimited
	LoginMFARequired
	RefreshSuccess
	RefreshFailure
	RefreshReuseDetected
	Logout
	SignupSuccess
	SignupDuplicate
	PinRequested
	PinRateLimited
	PinVerified
	PinInvalid
	PinAttemptsExceeded
	LinkTokenVerified
	PasswordResetRequest
	PasswordResetSuccess
	TOTPSetup
	TOTPEnabled
	MFADisabled
	MFAVerifySuccess
	MFAVerifyFailure
	BackupCodeUsed
	BackupCodeFailed
	BackupCodeRegenerated
	AccountLocked
	AccountUnlocked
	OAuthLogin
	SessionCreated
	AuthorizationDenied
	LoginLatency
	ValidateLatency
	idCount
)

// Count is the number of defined IDs.
const Count = int(idCount)

const (
	BucketCount   = 8
	cacheLineSize = 64
)

// Config toggles collection.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Metrics is a fixed-size set of counters and histograms. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	histograms    [idCount]histogram
}

// Snapshot is a point-in-time copy of all values.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id ID) {
	if m == nil || !m.enabled || id >= idCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d for histogram IDs; other IDs are ignored.
func (m *Metrics) Observe(id ID, d time.Duration) {
	if m == nil || !m.enableLatency || !IsHistogram(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Since observes the time elapsed from start. Intended for defer.
func (m *Metrics) Since(id ID, start time.Time) {
	m.Observe(id, time.Since(start))
}

func (m *Metrics) Value(id ID) uint64 {
	if m == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{Counters: map[ID]uint64{}, Histograms: map[ID][]uint64{}}
	if m == nil || !m.enabled {
		return s
	}
	for id := ID(0); id < idCount; id++ {
		if IsHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		for _, id := range []ID{LoginLatency, ValidateLatency} {
			buckets := make([]uint64, BucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

// IsHistogram reports whether id names a latency histogram.
func IsHistogram(id ID) bool {
	return id == LoginLatency || id == ValidateLatency
}

func bucketIndex(d time.Duration) int {
	switch ms := d.Milliseconds(); {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
