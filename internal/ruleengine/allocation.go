package ruleengine

import (
	"log/slog"
	"math"
	"strings"

	"github.com/spaolacci/murmur3"
	"golang.org/x/text/encoding/unicode"

	"github.com/rafaeljc/bifrost/internal/cache"
	"github.com/rafaeljc/bifrost/internal/delivery"
	"github.com/rafaeljc/bifrost/internal/observability"
)

// DefaultAllocationCacheSize caps the allocation memo when no size is configured.
const DefaultAllocationCacheSize = 100_000

// allocationBuckets is the number of buckets a device id is spread over (0.01% each).
const allocationBuckets = 10_000

// utf16le encodes device ids as the remote service does before hashing:
// two little-endian bytes per UTF-16 code unit, no byte order mark.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DeviceID builds the allocation key for a (client, activity, visitor) tuple.
func DeviceID(clientID, activityID, visitorID, salt string) string {
	return strings.Join([]string{clientID, activityID, visitorID, salt}, ".")
}

// Hash is the signed Murmur3 x86 32-bit hash (seed 0) of the UTF-16LE
// encoding of s.
//
// murmur3 v1.1.0 reads blocks through unsafe pointer arithmetic that the
// race detector's checkptr instrumentation rejects; run race tests with
// -gcflags=all=-d=checkptr=0.
func Hash(s string) int32 {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// Invalid UTF-8 is replaced, never rejected; this is unreachable.
		encoded = []byte(s)
	}
	return int32(murmur3.Sum32(encoded))
}

// allocationFor maps a device id to a percentage in [0, 100) with two decimals.
func allocationFor(deviceID string) float64 {
	h := int64(Hash(deviceID))
	if h < 0 {
		h = -h
	}
	pct := float64(h%allocationBuckets) / allocationBuckets * 100
	return math.Round(pct*100) / 100
}

// ComputeAllocation returns the traffic allocation bucket of a visitor for an
// activity. It is deterministic for identical inputs.
func ComputeAllocation(clientID, activityID, visitorID, salt string) float64 {
	return allocationFor(DeviceID(clientID, activityID, visitorID, salt))
}

// Allocator memoizes allocations per device id.
type Allocator struct {
	logger *slog.Logger
	memo   *cache.MemoryCache[string, float64]
}

// NewAllocator creates an allocator whose memo holds at most capacity device ids.
func NewAllocator(logger *slog.Logger, capacity int) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultAllocationCacheSize
	}

	memo, err := cache.NewMemoryCache[string, float64](capacity, 0)
	if err != nil {
		return nil, err
	}

	return &Allocator{logger: logger, memo: memo}, nil
}

// Allocation returns the memoized allocation for a visitor. The visitor id is
// resolved with GetOrCreateVisitorID.
func (a *Allocator) Allocation(clientID, activityID string, visitor *delivery.VisitorID, salt string) float64 {
	deviceID := DeviceID(clientID, activityID, GetOrCreateVisitorID(visitor), salt)

	if v, ok := a.memo.Get(deviceID); ok {
		observability.AllocationCacheHits.Inc()
		return v
	}
	observability.AllocationCacheMisses.Inc()

	v := allocationFor(deviceID)
	if !a.memo.Set(deviceID, v) {
		a.logger.Debug("allocation memo rejected write", slog.String("device_id", deviceID))
	}
	return v
}

// Close releases the memo.
func (a *Allocator) Close() {
	a.memo.Close()
}
