// Package models contains shared data models used across the sheltertrack codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of an animal record. IN is initial, OUT is terminal.
type Status string

const (
	StatusIn  Status = "IN"
	StatusOut Status = "OUT"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusIn || s == StatusOut
}

// Destination is the holding location of an animal while it is IN.
type Destination string

const (
	DestinationTreatmentCenter Destination = "Treatment Center"
	DestinationRehabCenter     Destination = "Rehab Center"
	DestinationOther           Destination = "Other"
)

// Valid reports whether d is a known destination.
func (d Destination) Valid() bool {
	switch d {
	case DestinationTreatmentCenter, DestinationRehabCenter, DestinationOther:
		return true
	}
	return false
}

// MarkOutType records how an animal left care.
type MarkOutType string

const (
	MarkOutRelease MarkOutType = "Release"
	MarkOutDead    MarkOutType = "Dead"
	MarkOutOther   MarkOutType = "Other"
)

// Valid reports whether t is a known mark-out type.
func (t MarkOutType) Valid() bool {
	switch t {
	case MarkOutRelease, MarkOutDead, MarkOutOther:
		return true
	}
	return false
}

// Disposition is the tagged mark-out outcome. Reason is only carried for MarkOutOther.
type Disposition struct {
	Type   MarkOutType
	Reason string
}

// Animal is a single rescue record moving through intake (IN) and disposition (OUT).
// ID is a storage surrogate; callers address records by JobID.
type Animal struct {
	ID             uuid.UUID   `db:"id"              json:"-"`
	JobID          string      `db:"job_id"          json:"jobId"`
	Species        string      `db:"species"         json:"species"`
	Subspecies     string      `db:"subspecies"      json:"subspecies,omitempty"`
	Status         Status      `db:"status"          json:"status"`
	Destination    Destination `db:"destination"     json:"destination"`
	InchargePerson string      `db:"incharge_person" json:"inchargePerson,omitempty"`
	Remark         string      `db:"remark"          json:"remark,omitempty"`
	IsTreated      bool        `db:"is_treated"      json:"isTreated"`
	InAt           time.Time   `db:"in_at"           json:"inAt"`
	InBy           string      `db:"in_by"           json:"inBy"`
	OutAt          *time.Time  `db:"out_at"          json:"outAt,omitempty"`
	OutBy          string      `db:"out_by"          json:"outBy,omitempty"`
	MarkOutType    MarkOutType `db:"mark_out_type"   json:"markOutType,omitempty"`
	MarkOutReason  string      `db:"mark_out_reason" json:"markOutReason,omitempty"`
	CreatedAt      time.Time   `db:"created_at"      json:"createdAt"`
	UpdatedAt      time.Time   `db:"updated_at"      json:"updatedAt"`
}

// IsIn reports whether the record is still in care and therefore mutable.
func (a *Animal) IsIn() bool {
	return a.Status == StatusIn
}

// Disposition returns the mark-out outcome as a tagged value.
func (a *Animal) Disposition() Disposition {
	return Disposition{Type: a.MarkOutType, Reason: a.MarkOutReason}
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (a *Animal) Clone() *Animal {
	c := *a
	if a.OutAt != nil {
		t := *a.OutAt
		c.OutAt = &t
	}
	return &c
}
