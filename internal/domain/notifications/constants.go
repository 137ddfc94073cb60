package notifications

const (
	TypeLeaveSubmitted = "leave_submitted"
	TypeLeaveAdvanced  = "leave_advanced"
	TypeLeaveApproved  = "leave_approved"
	TypeLeaveRejected  = "leave_rejected"
	TypeLeaveDebited   = "leave_debited"
	TypeLeaveCancelled = "leave_cancelled"
	TypeLeaveRevoked   = "leave_revoked"
)
