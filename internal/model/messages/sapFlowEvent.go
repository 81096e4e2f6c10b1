package messages

import "time"

// SapFlowEvent carries the sap flow (cm³/h) per sensor ring.
type SapFlowEvent struct {
	EventID   string    `json:"event_id"`
	FieldID   string    `json:"field_id"`
	TreeID    string    `json:"tree_id"`
	Inner     Number    `json:"inner"`
	Mid       Number    `json:"mid"`
	Outer     Number    `json:"outer"`
	Total     Number    `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}
