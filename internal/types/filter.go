package types

import "time"

// EntityFilter narrows an entity listing (§4.8). Zero-value fields are
// not applied; nil pointers mean "unfiltered".
type EntityFilter struct {
	UUIDIDs     []int64
	EntityIDs   []int64
	Host        string
	User        string
	ArchiveType *ArchiveType
	IncludeDeleted bool
	Pattern     string // full-text pattern, tokenized per §4.8

	Sort      EntitySortMode
	Order     SortOrder
	Offset    int
	Limit     int
}

// StorageFilter narrows a storage listing (§4.8).
type StorageFilter struct {
	UUIDIDs   []int64
	EntityIDs []int64
	StorageIDs []int64
	State     *State
	StateSet  []State // bitset-style membership
	Mode      *Mode
	Host      string
	User      string
	IncludeDeleted bool
	Pattern   string

	Sort   StorageSortMode
	Order  SortOrder
	Offset int
	Limit  int
}

// EntryFilter narrows an entry listing (§4.8), including the
// type-specialized listings (file/image/directory/link/hardlink/special).
type EntryFilter struct {
	UUIDIDs   []int64
	EntityIDs []int64
	StorageIDs []int64
	TypeSet   []EntryType
	Archive   *ArchiveType
	Pattern   string

	Sort   EntrySortMode
	Order  SortOrder
	Offset int
	Limit  int
}

// TimeWindow is a caller-provided predicate over wall time, used to gate
// when the maintenance worker is allowed to run purge/prune steps (§4.7,
// glossary "Maintenance window").
type TimeWindow func(now time.Time) bool

// AlwaysOpen is a TimeWindow that permits maintenance at any time.
func AlwaysOpen(time.Time) bool { return true }
