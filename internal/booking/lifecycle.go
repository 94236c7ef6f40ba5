package booking

import (
	"slices"

	"github.com/google/uuid"
)

// transitions lists, per role and current status, the statuses that role may
// move a booking to.
var transitions = map[Role]map[Status][]Status{
	RolePatient: {
		StatusPending:   {StatusCancelled},
		StatusConfirmed: {StatusCancelled},
	},
	RoleDoctor: {
		StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
	},
	RoleAdmin: {
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
		StatusCancelled: {StatusCompleted},
		StatusCompleted: {StatusCancelled},
	},
}

// CanTransition reports whether role may move a booking from one status to another.
func CanTransition(role Role, from, to Status) bool {
	return slices.Contains(transitions[role][from], to)
}

// authorizeStatusChange applies ownership, role and transition rules for a
// status update. It performs no I/O.
func authorizeStatusChange(b *Booking, actor Actor, target Status) error {
	switch actor.Role {
	case RolePatient:
		if !sameUser(b.PatientID, actor.UserID) {
			return ErrNotBookingOwner
		}
		if target != StatusCancelled {
			return ErrPatientCancelOnly
		}
	case RoleDoctor:
		if !sameUser(b.DoctorID, actor.UserID) {
			return ErrNotAssignedDoctor
		}
	case RoleAdmin:
	default:
		return ErrUnknownRole
	}

	if b.Status == target {
		return invalidInput("booking is already %s", target)
	}

	if CanTransition(actor.Role, b.Status, target) {
		return nil
	}

	switch actor.Role {
	case RoleAdmin:
		if b.Status.Terminal() && target.Active() {
			return invalidInput("cannot revert a %s booking to %s", b.Status, target)
		}
	case RolePatient, RoleDoctor:
		if b.Status.Terminal() {
			return invalidInput("booking is already %s and cannot be updated further", b.Status)
		}
	}
	return invalidInput("cannot change status from %s to %s", b.Status, target)
}

// canView reports whether actor may read b.
func canView(b *Booking, actor Actor) bool {
	switch actor.Role {
	case RolePatient:
		return sameUser(b.PatientID, actor.UserID)
	case RoleDoctor:
		return sameUser(b.DoctorID, actor.UserID)
	case RoleAdmin:
		return true
	}
	return false
}

func sameUser(a, b uuid.UUID) bool {
	return a != uuid.Nil && a == b
}
