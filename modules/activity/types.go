package activity

// ServiceRecentActivity is the request-reply service returning the feed.
const ServiceRecentActivity = "recent-activity"

// RecentActivityRequest asks for the latest Limit entries.
type RecentActivityRequest struct {
	Limit int `json:"limit"`
}

// RecentActivityResponse carries the feed summary.
type RecentActivityResponse struct {
	Summary Summary `json:"summary"`
}
