package domain

// Status is the lifecycle state of an application.
type Status string

const (
	StatusSubmitted             Status = "submitted"
	StatusRejectedPreInterview  Status = "rejected_pre_interview"
	StatusInProgress            Status = "in_progress"
	StatusRejectedPostInterview Status = "rejected_post_interview"
	StatusOffer                 Status = "offer"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{
	StatusSubmitted,
	StatusRejectedPreInterview,
	StatusInProgress,
	StatusRejectedPostInterview,
	StatusOffer,
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }
