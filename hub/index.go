package hub

import (
	"fmt"
	"strings"
	"sync"
)

// Dimension is one of the fixed topic categories used to route events.
// The set is closed; unknown dimensions are rejected at the command
// boundary.
type Dimension string

// Subscription dimensions
const (
	DimLine       Dimension = "line"
	DimEquipment  Dimension = "equipment"
	DimJob        Dimension = "job"
	DimOEE        Dimension = "oee"
	DimQuality    Dimension = "quality"
	DimChangeover Dimension = "changeover"
	DimDowntime   Dimension = "downtime"
	DimEscalation Dimension = "escalation"
)

// dimensions lists every dimension, used for stats and cascade checks
var dimensions = []Dimension{
	DimLine, DimEquipment, DimJob, DimOEE,
	DimQuality, DimChangeover, DimDowntime, DimEscalation,
}

// ParseDimension maps a wire subscription_type to a Dimension
func ParseDimension(s string) (Dimension, bool) {
	switch Dimension(strings.ToLower(strings.TrimSpace(s))) {
	case DimLine:
		return DimLine, true
	case DimEquipment:
		return DimEquipment, true
	case DimJob:
		return DimJob, true
	case DimOEE:
		return DimOEE, true
	case DimQuality:
		return DimQuality, true
	case DimChangeover:
		return DimChangeover, true
	case DimDowntime:
		return DimDowntime, true
	case DimEscalation:
		return DimEscalation, true
	default:
		return "", false
	}
}

// KeyAll is the wildcard key: a subscriber registered with it receives
// every event in its dimension.
const KeyAll = "*"

// DowntimeKey builds the normalized key for a downtime subscription
// scoped by optional line id and/or equipment code. Empty parts yield the
// partially-specific or wildcard forms.
func DowntimeKey(lineID, equipmentCode string) string {
	return pairKey("line", lineID, "equipment", equipmentCode)
}

// EscalationKey builds the normalized key for an escalation subscription
// scoped by optional escalation id and/or priority level.
func EscalationKey(escalationID, priority string) string {
	return pairKey("escalation", escalationID, "priority", priority)
}

// pairKey normalizes an optional pair into one of four forms:
// "*", "a:<x>", "b:<y>", "a:<x>|b:<y>".
func pairKey(aName, aVal, bName, bVal string) string {
	switch {
	case aVal == "" && bVal == "":
		return KeyAll
	case bVal == "":
		return fmt.Sprintf("%s:%s", aName, aVal)
	case aVal == "":
		return fmt.Sprintf("%s:%s", bName, bVal)
	default:
		return fmt.Sprintf("%s:%s|%s:%s", aName, aVal, bName, bVal)
	}
}

// downtimeEventKeys enumerates every bucket a downtime event touches: the
// fully-specific key, each partially-specific key, and the wildcard.
func downtimeEventKeys(lineID, equipmentCode string) []string {
	keys := []string{KeyAll}
	if lineID != "" {
		keys = append(keys, DowntimeKey(lineID, ""))
	}
	if equipmentCode != "" {
		keys = append(keys, DowntimeKey("", equipmentCode))
	}
	if lineID != "" && equipmentCode != "" {
		keys = append(keys, DowntimeKey(lineID, equipmentCode))
	}
	return keys
}

// severityRank orders escalation priority levels for threshold matching
var severityRank = map[string]int{
	"low":      0,
	"medium":   1,
	"high":     2,
	"critical": 3,
}

// escalationEventKeys enumerates every bucket an escalation event touches.
// Priority buckets are thresholds: a subscriber keyed at "medium" receives
// medium, high and critical events, so an event expands into its own
// priority bucket plus every lower one.
func escalationEventKeys(escalationID, priority string) []string {
	keys := []string{KeyAll}
	if escalationID != "" {
		keys = append(keys, EscalationKey(escalationID, ""))
	}
	if rank, ok := severityRank[priority]; ok {
		for level, r := range severityRank {
			if r <= rank {
				keys = append(keys, EscalationKey("", level))
				if escalationID != "" {
					keys = append(keys, EscalationKey(escalationID, level))
				}
			}
		}
	} else if priority != "" {
		keys = append(keys, EscalationKey("", priority))
		if escalationID != "" {
			keys = append(keys, EscalationKey(escalationID, priority))
		}
	}
	return keys
}

// SubscriptionIndex maps (dimension, key) to sets of connection ids. One
// coarse lock guards both the forward buckets and the per-connection
// reverse index; event rates on a factory floor do not justify finer
// grained locking, and the single lock makes the cascade atomic.
type SubscriptionIndex struct {
	mu sync.RWMutex
	// buckets: dimension -> key -> set of connection ids
	buckets map[Dimension]map[string]map[string]struct{}
	// byConn: connection id -> set of dimension/key pairs, for cascade
	byConn map[string]map[dimKey]struct{}
	total  int
}

type dimKey struct {
	dim Dimension
	key string
}

// NewSubscriptionIndex creates an empty index
func NewSubscriptionIndex() *SubscriptionIndex {
	idx := &SubscriptionIndex{
		buckets: make(map[Dimension]map[string]map[string]struct{}),
		byConn:  make(map[string]map[dimKey]struct{}),
	}
	for _, dim := range dimensions {
		idx.buckets[dim] = make(map[string]map[string]struct{})
	}
	return idx
}

// Subscribe adds connID to the (dim, key) bucket. Adding an existing
// subscription is a no-op.
func (idx *SubscriptionIndex) Subscribe(dim Dimension, key, connID string) {
	if key == "" {
		key = KeyAll
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, ok := idx.buckets[dim][key]
	if !ok {
		bucket = make(map[string]struct{})
		idx.buckets[dim][key] = bucket
	}
	if _, exists := bucket[connID]; exists {
		return
	}
	bucket[connID] = struct{}{}

	refs, ok := idx.byConn[connID]
	if !ok {
		refs = make(map[dimKey]struct{})
		idx.byConn[connID] = refs
	}
	refs[dimKey{dim, key}] = struct{}{}
	idx.total++
}

// Unsubscribe removes connID from the (dim, key) bucket. Removing a
// subscription that does not exist is a no-op.
func (idx *SubscriptionIndex) Unsubscribe(dim Dimension, key, connID string) {
	if key == "" {
		key = KeyAll
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(dim, key, connID)
}

// RemoveConnection removes every subscription held by connID across all
// dimensions. This is the cascade invoked on connection teardown; after
// it returns no bucket references connID.
func (idx *SubscriptionIndex) RemoveConnection(connID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	refs, ok := idx.byConn[connID]
	if !ok {
		return
	}
	for ref := range refs {
		idx.removeLocked(ref.dim, ref.key, connID)
	}
}

// removeLocked deletes one membership and prunes empty buckets. Caller
// holds idx.mu.
func (idx *SubscriptionIndex) removeLocked(dim Dimension, key, connID string) {
	bucket, ok := idx.buckets[dim][key]
	if !ok {
		return
	}
	if _, exists := bucket[connID]; !exists {
		return
	}
	delete(bucket, connID)
	if len(bucket) == 0 {
		delete(idx.buckets[dim], key)
	}

	if refs, ok := idx.byConn[connID]; ok {
		delete(refs, dimKey{dim, key})
		if len(refs) == 0 {
			delete(idx.byConn, connID)
		}
	}
	idx.total--
}

// SubscribersFor returns the set of connection ids subscribed to (dim,
// key), including wildcard subscribers of that dimension.
func (idx *SubscriptionIndex) SubscribersFor(dim Dimension, key string) map[string]struct{} {
	if key == "" {
		key = KeyAll
	}
	keys := []string{key}
	if key != KeyAll {
		keys = append(keys, KeyAll)
	}
	return idx.subscribersForKeys(dim, keys)
}

// DowntimeSubscribers resolves the subscriber set for a downtime event:
// the union of the fully-specific, partially-specific and wildcard
// buckets, de-duplicated.
func (idx *SubscriptionIndex) DowntimeSubscribers(lineID, equipmentCode string) map[string]struct{} {
	return idx.subscribersForKeys(DimDowntime, downtimeEventKeys(lineID, equipmentCode))
}

// EscalationSubscribers resolves the subscriber set for an escalation
// event across its hierarchical buckets.
func (idx *SubscriptionIndex) EscalationSubscribers(escalationID, priority string) map[string]struct{} {
	return idx.subscribersForKeys(DimEscalation, escalationEventKeys(escalationID, priority))
}

func (idx *SubscriptionIndex) subscribersForKeys(dim Dimension, keys []string) map[string]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string]struct{})
	for _, key := range keys {
		for connID := range idx.buckets[dim][key] {
			out[connID] = struct{}{}
		}
	}
	return out
}

// SubscriptionsOf returns the dimension/key pairs held by a connection,
// keyed by dimension, for the confirmation and stats replies.
func (idx *SubscriptionIndex) SubscriptionsOf(connID string) map[Dimension][]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[Dimension][]string)
	for ref := range idx.byConn[connID] {
		out[ref.dim] = append(out[ref.dim], ref.key)
	}
	return out
}

// CountByDimension returns the number of distinct subscriptions per
// dimension
func (idx *SubscriptionIndex) CountByDimension() map[Dimension]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[Dimension]int, len(dimensions))
	for _, dim := range dimensions {
		n := 0
		for _, bucket := range idx.buckets[dim] {
			n += len(bucket)
		}
		out[dim] = n
	}
	return out
}

// Total returns the total number of subscription entries
func (idx *SubscriptionIndex) Total() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.total
}
