package enums

import "fmt"

// NotificationType routes client-side rendering of in-app notifications.
type NotificationType string

const (
	NotificationTypeAppointmentRequest  NotificationType = "appointment_request"
	NotificationTypeAppointmentApproved NotificationType = "appointment_approved"
	NotificationTypeAppointmentRejected NotificationType = "appointment_rejected"
	NotificationTypeChatMessage         NotificationType = "chat_message"
	NotificationTypeChargeApproved      NotificationType = "charge_approved"
	NotificationTypeChargeRejected      NotificationType = "charge_rejected"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAppointmentRequest,
	NotificationTypeAppointmentApproved,
	NotificationTypeAppointmentRejected,
	NotificationTypeChatMessage,
	NotificationTypeChargeApproved,
	NotificationTypeChargeRejected,
}

// IsValid reports whether the value matches the canonical notification type enum.
func (t NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseNotificationType converts the raw string to NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
