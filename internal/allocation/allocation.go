// Package allocation implements deterministic traffic splitting: picking a
// variation from a deviation table for a hashed visitor, and electing the
// single active flag inside a mutually-exclusive group.
package allocation

import (
	"sort"

	"github.com/matt-riley/splitz/internal/hashing"
	"github.com/matt-riley/splitz/internal/models"
)

// Allocate selects a variation id for the visitor from the deviation table,
// or reports ok=false when the visitor falls outside the table's coverage
// ("not allocated" — distinct from the reference variation id 0).
//
// The table is walked in ascending variation-id order (id 0, the reference
// variation, first), accumulating deviation weights scaled by exposition;
// the first entry whose cumulative sum reaches the visitor's hash wins. All
// non-nil repool timestamps in the table feed the hash, so the whole table
// re-pools together when any of them changes.
func Allocate(visitorCode string, containerID int, table []models.VariationConfiguration, exposition float64) (int, bool) {
	if len(table) == 0 {
		return 0, false
	}

	ordered := make([]models.VariationConfiguration, len(table))
	copy(ordered, table)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].VariationID < ordered[j].VariationID
	})

	hash := hashing.ObtainHashDouble(visitorCode, containerID, respoolTimes(ordered)...)
	return pick(ordered, exposition, hash)
}

// pick walks the ascending-id table accumulating scaled deviations; the
// cumulative comparison uses >=, so a hash landing exactly on a boundary
// belongs to the first entry reaching it.
func pick(ordered []models.VariationConfiguration, exposition, hash float64) (int, bool) {
	var cumulative float64
	for _, entry := range ordered {
		cumulative += entry.Deviation * exposition
		if cumulative >= hash {
			return entry.VariationID, true
		}
	}
	return 0, false
}

// respoolTimes collects the non-nil repool timestamps in ascending
// variation-id order.
func respoolTimes(ordered []models.VariationConfiguration) []int64 {
	var times []int64
	for _, entry := range ordered {
		if entry.RespoolTime != nil {
			times = append(times, *entry.RespoolTime)
		}
	}
	return times
}

// Sticky reports whether a recorded assignment is still valid for the table:
// the assigned variation must still exist, and its repool time (if any) must
// not be newer than the assignment. An invalidated assignment means the
// visitor is re-hashed and may land elsewhere.
func Sticky(table []models.VariationConfiguration, assignedVariationID int, assignedAtUnix int64) bool {
	for _, entry := range table {
		if entry.VariationID != assignedVariationID {
			continue
		}
		if entry.RespoolTime != nil && *entry.RespoolTime > assignedAtUnix {
			return false
		}
		return true
	}
	return false
}

// SelectMEGroupFlag elects the one flag a visitor may enter within a
// mutually-exclusive group. Flags must be sorted by ascending id (as
// returned by the snapshot); the group hash picks index floor(hash*size),
// clamped to the last member.
func SelectMEGroupFlag(visitorCode, groupName string, group []*models.FeatureFlag) *models.FeatureFlag {
	if len(group) == 0 {
		return nil
	}
	hash := hashing.ObtainHashDoubleMEGroup(visitorCode, groupName)
	index := int(hash * float64(len(group)))
	if index >= len(group) {
		index = len(group) - 1
	}
	return group[index]
}
