package enums

import "fmt"

// AppointmentStatus is the canonical lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentStatusPending          AppointmentStatus = "pending"
	AppointmentStatusPendingApproval  AppointmentStatus = "pending_provider_approval"
	AppointmentStatusConfirmed        AppointmentStatus = "confirmed"
	AppointmentStatusRejected         AppointmentStatus = "rejected"
	AppointmentStatusCancelled        AppointmentStatus = "cancelled"
	AppointmentStatusCompleted        AppointmentStatus = "completed"
)

var validAppointmentStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusPendingApproval,
	AppointmentStatusConfirmed,
	AppointmentStatusRejected,
	AppointmentStatusCancelled,
	AppointmentStatusCompleted,
}

// IsValid reports whether the value matches the canonical appointment status enum.
func (s AppointmentStatus) IsValid() bool {
	for _, candidate := range validAppointmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is legal from the status.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusRejected, AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	default:
		return false
	}
}

// ParseAppointmentStatus converts the raw string to AppointmentStatus.
func ParseAppointmentStatus(value string) (AppointmentStatus, error) {
	for _, candidate := range validAppointmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid appointment status %q", value)
}
