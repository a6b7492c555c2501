package types

import "fmt"

// State is the lifecycle state of a Storage row.
type State int

const (
	StateNone State = iota
	StateOK
	StateCreate
	StateUpdateRequested
	StateUpdate
	StateError
)

var stateNames = map[State]string{
	StateNone:            "NONE",
	StateOK:              "OK",
	StateCreate:          "CREATE",
	StateUpdateRequested: "UPDATE_REQUESTED",
	StateUpdate:          "UPDATE",
	StateError:           "ERROR",
}

var stateByName = reverse(stateNames)

func (s State) String() string { return lookup(stateNames, s) }

func ParseState(s string) (State, error) {
	v, ok := stateByName[upper(s)]
	if !ok {
		return StateNone, fmt.Errorf("unknown state %q", s)
	}
	return v, nil
}

// Mode is how a Storage artifact was produced.
type Mode int

const (
	ModeManual Mode = iota
	ModeAuto
	ModeAny
)

var modeNames = map[Mode]string{
	ModeManual: "MANUAL",
	ModeAuto:   "AUTO",
	ModeAny:    "*",
}

var modeByName = reverse(modeNames)

func (m Mode) String() string { return lookup(modeNames, m) }

func ParseMode(s string) (Mode, error) {
	v, ok := modeByName[upper(s)]
	if !ok {
		return ModeManual, fmt.Errorf("unknown mode %q", s)
	}
	return v, nil
}

// EntryType is the file-system kind an Entry row represents.
type EntryType int

const (
	EntryFile EntryType = iota
	EntryImage
	EntryDirectory
	EntryLink
	EntryHardlink
	EntrySpecial
)

var entryTypeNames = map[EntryType]string{
	EntryFile:      "FILE",
	EntryImage:     "IMAGE",
	EntryDirectory: "DIRECTORY",
	EntryLink:      "LINK",
	EntryHardlink:  "HARDLINK",
	EntrySpecial:   "SPECIAL",
}

var entryTypeByName = reverse(entryTypeNames)

func (t EntryType) String() string { return lookup(entryTypeNames, t) }

func ParseEntryType(s string) (EntryType, error) {
	v, ok := entryTypeByName[upper(s)]
	if !ok {
		return EntryFile, fmt.Errorf("unknown entry type %q", s)
	}
	return v, nil
}

// FragmentCapable reports whether this entry kind is stored as byte-range
// fragments (file/image/hardlink) rather than as a single type row keyed
// directly to a storage (directory/link/special).
func (t EntryType) FragmentCapable() bool {
	switch t {
	case EntryFile, EntryImage, EntryHardlink:
		return true
	default:
		return false
	}
}

// ArchiveType is the kind of backup run an Entity represents.
type ArchiveType int

const (
	ArchiveNormal ArchiveType = iota
	ArchiveFull
	ArchiveIncremental
	ArchiveDifferential
	ArchiveContinuous
	ArchiveContinuousDeleted
	ArchiveAny
)

var archiveTypeNames = map[ArchiveType]string{
	ArchiveNormal:            "NORMAL",
	ArchiveFull:              "FULL",
	ArchiveIncremental:       "INCREMENTAL",
	ArchiveDifferential:      "DIFFERENTIAL",
	ArchiveContinuous:        "CONTINUOUS",
	ArchiveContinuousDeleted: "CONTINUOUS_DELETED",
	ArchiveAny:               "ANY",
}

var archiveTypeByName = reverse(archiveTypeNames)

func (t ArchiveType) String() string { return lookup(archiveTypeNames, t) }

func ParseArchiveType(s string) (ArchiveType, error) {
	normalized := upper(s)
	for i := range normalized {
		if normalized[i] == '-' {
			b := []byte(normalized)
			b[i] = '_'
			normalized = string(b)
		}
	}
	v, ok := archiveTypeByName[normalized]
	if !ok {
		return ArchiveNormal, fmt.Errorf("unknown archive type %q", s)
	}
	return v, nil
}

// SortOrder is the direction applied to a sort-mode column list.
type SortOrder int

const (
	OrderNone SortOrder = iota
	OrderAscending
	OrderDescending
)

var sortOrderNames = map[SortOrder]string{
	OrderNone:       "NONE",
	OrderAscending:  "ASCENDING",
	OrderDescending: "DESCENDING",
}

var sortOrderByName = reverse(sortOrderNames)

func (o SortOrder) String() string { return lookup(sortOrderNames, o) }

func ParseSortOrder(s string) (SortOrder, error) {
	v, ok := sortOrderByName[upper(s)]
	if !ok {
		return OrderNone, fmt.Errorf("unknown sort order %q", s)
	}
	return v, nil
}

// EntitySortMode selects the column an entity listing is ordered by.
type EntitySortMode int

const (
	EntitySortJobUUID EntitySortMode = iota
	EntitySortCreated
)

var entitySortModeNames = map[EntitySortMode]string{
	EntitySortJobUUID: "JOB_UUID",
	EntitySortCreated: "CREATED",
}

var entitySortModeByName = reverse(entitySortModeNames)

func (m EntitySortMode) String() string { return lookup(entitySortModeNames, m) }

func ParseEntitySortMode(s string) (EntitySortMode, error) {
	v, ok := entitySortModeByName[upper(s)]
	if !ok {
		return EntitySortCreated, fmt.Errorf("unknown entity sort mode %q", s)
	}
	return v, nil
}

// StorageSortMode selects the column a storage listing is ordered by.
type StorageSortMode int

const (
	StorageSortName StorageSortMode = iota
	StorageSortSize
	StorageSortCreated
	StorageSortState
)

var storageSortModeNames = map[StorageSortMode]string{
	StorageSortName:    "NAME",
	StorageSortSize:    "SIZE",
	StorageSortCreated: "CREATED",
	StorageSortState:   "STATE",
}

var storageSortModeByName = reverse(storageSortModeNames)

func (m StorageSortMode) String() string { return lookup(storageSortModeNames, m) }

func ParseStorageSortMode(s string) (StorageSortMode, error) {
	v, ok := storageSortModeByName[upper(s)]
	if !ok {
		return StorageSortCreated, fmt.Errorf("unknown storage sort mode %q", s)
	}
	return v, nil
}

// EntrySortMode selects the column an entry listing is ordered by.
type EntrySortMode int

const (
	EntrySortArchive EntrySortMode = iota
	EntrySortName
	EntrySortType
	EntrySortSize
	EntrySortFragment
	EntrySortLastChanged
)

var entrySortModeNames = map[EntrySortMode]string{
	EntrySortArchive:     "ARCHIVE",
	EntrySortName:        "NAME",
	EntrySortType:        "TYPE",
	EntrySortSize:        "SIZE",
	EntrySortFragment:    "FRAGMENT",
	EntrySortLastChanged: "LAST_CHANGED",
}

var entrySortModeByName = reverse(entrySortModeNames)

func (m EntrySortMode) String() string { return lookup(entrySortModeNames, m) }

func ParseEntrySortMode(s string) (EntrySortMode, error) {
	v, ok := entrySortModeByName[upper(s)]
	if !ok {
		return EntrySortName, fmt.Errorf("unknown entry sort mode %q", s)
	}
	return v, nil
}

func reverse[K comparable, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func lookup[K comparable](m map[K]string, k K) string {
	if name, ok := m[k]; ok {
		return name
	}
	return "UNKNOWN"
}
