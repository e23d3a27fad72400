package entities

import "time"

// StatsSnapshot is the server-computed dashboard counter set. Clients apply
// it as a whole and never derive these numbers from raw events.
type StatsSnapshot struct {
	Day                string    `json:"day"`
	ActiveUsersToday   int64     `json:"activeUsersToday"`
	MessagesToday      int64     `json:"messagesToday"`
	UserMessagesToday  int64     `json:"userMessagesToday"`
	BotMessagesToday   int64     `json:"botMessagesToday"`
	AdminMessagesToday int64     `json:"adminMessagesToday"`
	ActiveTakeovers    int64     `json:"activeTakeovers"`
	ConnectedAdmins    int       `json:"connectedAdmins"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// WorkerMetrics is the worker's own whole-value snapshot.
type WorkerMetrics struct {
	AutoReplies       int64     `json:"autoReplies"`
	SuppressedReplies int64     `json:"suppressedReplies"`
	DeliveriesOK      int64     `json:"deliveriesOk"`
	DeliveriesFailed  int64     `json:"deliveriesFailed"`
	InboundMessages   int64     `json:"inboundMessages"`
	GeneratedAt       time.Time `json:"generatedAt"`
}
