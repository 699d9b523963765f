package enums

import "fmt"

// ChargeRequestStatus tracks the review state of a wallet top-up request.
type ChargeRequestStatus string

const (
	ChargeRequestStatusPending  ChargeRequestStatus = "pending"
	ChargeRequestStatusApproved ChargeRequestStatus = "approved"
	ChargeRequestStatusRejected ChargeRequestStatus = "rejected"
)

var validChargeRequestStatuses = []ChargeRequestStatus{
	ChargeRequestStatusPending,
	ChargeRequestStatusApproved,
	ChargeRequestStatusRejected,
}

// IsValid reports whether the value matches the canonical charge request status enum.
func (s ChargeRequestStatus) IsValid() bool {
	for _, candidate := range validChargeRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseChargeRequestStatus converts the raw string to ChargeRequestStatus.
func ParseChargeRequestStatus(value string) (ChargeRequestStatus, error) {
	for _, candidate := range validChargeRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge request status %q", value)
}
