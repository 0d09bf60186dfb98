// Package clearance keeps the append-only clearance ledger of a case and
// derives section and group verdicts from it.
//
// Group rule: Objection dominates. If any member section's latest clearance is
// an objection the group is in objection. Otherwise the group is clear only
// when every member's latest clearance is clear. Anything else is pending.
// Clearances of sections outside the group are ignored.
package clearance

import (
	"transferdesk/internal/workflow/models"
)

// Ledger is the full clearance history of one case in commit order. Every
// store returns it that way, so position, not CreatedAt, decides which record
// is current: CreatedAt is the request time and two requests may commit in
// the opposite order they started.
type Ledger []models.Clearance

// Latest projects the ledger to the current decision per section. The last
// committed record of a section wins.
func (l Ledger) Latest() map[models.Section]models.Clearance {
	latest := make(map[models.Section]models.Clearance, len(l))
	for _, c := range l {
		latest[c.Section] = c
	}
	return latest
}

// History returns the records of one section in commit order.
func (l Ledger) History(sec models.Section) []models.Clearance {
	var out []models.Clearance
	for _, c := range l {
		if c.Section == sec {
			out = append(out, c)
		}
	}
	return out
}

// SectionStatus returns the latest status for a section, Pending when the
// section has not recorded anything.
func SectionStatus(latest map[models.Section]models.Clearance, sec models.Section) models.ClearanceStatus {
	if c, ok := latest[sec]; ok {
		return c.Status
	}
	return models.ClearancePending
}

// GroupStatus aggregates the latest decisions of a group's sections.
func GroupStatus(latest map[models.Section]models.Clearance, group models.SectionGroup) models.ClearanceStatus {
	if len(group.Sections) == 0 {
		return models.ClearancePending
	}
	allClear := true
	for _, sec := range group.Sections {
		switch SectionStatus(latest, sec) {
		case models.ClearanceObjection:
			return models.ClearanceObjection
		case models.ClearanceClear:
		default:
			allClear = false
		}
	}
	if allClear {
		return models.ClearanceClear
	}
	return models.ClearancePending
}

// Verdict explains a group status per section, for previews.
type Verdict struct {
	Group      string
	Status     models.ClearanceStatus
	Objections []models.Section
	Pending    []models.Section
	Sections   map[models.Section]models.ClearanceStatus
}

// Explain returns the group status together with the sections blocking it.
func Explain(latest map[models.Section]models.Clearance, group models.SectionGroup) Verdict {
	v := Verdict{
		Group:    group.Name,
		Status:   GroupStatus(latest, group),
		Sections: make(map[models.Section]models.ClearanceStatus, len(group.Sections)),
	}
	for _, sec := range group.Sections {
		st := SectionStatus(latest, sec)
		v.Sections[sec] = st
		switch st {
		case models.ClearanceObjection:
			v.Objections = append(v.Objections, sec)
		case models.ClearancePending:
			v.Pending = append(v.Pending, sec)
		}
	}
	return v
}
