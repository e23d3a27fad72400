package entities

// DeliveryJob is one outbound message the worker must hand to an external
// channel. EventID is the committed turn's response event id and doubles as
// the dedup key.
type DeliveryJob struct {
	UserID  string `json:"userId"`
	Text    string `json:"text"`
	TurnID  int64  `json:"turnId"`
	EventID string `json:"eventId"`
	AdminID string `json:"adminId,omitempty"`
}
