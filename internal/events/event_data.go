package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SessionCreatedData contains data for SessionCreated events
type SessionCreatedData struct {
	SessionID string `json:"session_id"`
}

// EventType returns the event type for SessionCreatedData
func (d *SessionCreatedData) EventType() EventType {
	return SessionCreated
}

// SessionEvictedData contains data for SessionEvicted events
type SessionEvictedData struct {
	SessionID   string  `json:"session_id"`
	IdleSeconds float64 `json:"idle_seconds"`
}

// EventType returns the event type for SessionEvictedData
func (d *SessionEvictedData) EventType() EventType {
	return SessionEvicted
}

// SessionDeletedData contains data for SessionDeleted events
type SessionDeletedData struct {
	SessionID string `json:"session_id"`
}

// EventType returns the event type for SessionDeletedData
func (d *SessionDeletedData) EventType() EventType {
	return SessionDeleted
}

// ValuationUpdatedData contains data for ValuationUpdated events
type ValuationUpdatedData struct {
	SessionID      string  `json:"session_id"`
	Version        uint64  `json:"version"`
	BondPrice      float64 `json:"bond_price"`
	Classification string  `json:"classification"`
	Periods        int     `json:"periods"`
}

// EventType returns the event type for ValuationUpdatedData
func (d *ValuationUpdatedData) EventType() EventType {
	return ValuationUpdated
}

// ValuationClearedData is emitted when a session has no valid result.
// Reason is either "validation" or "calculation".
type ValuationClearedData struct {
	SessionID string            `json:"session_id"`
	Version   uint64            `json:"version"`
	Reason    string            `json:"reason"`
	Errors    map[string]string `json:"errors,omitempty"`
	CalcError string            `json:"calc_error,omitempty"`
}

// EventType returns the event type for ValuationClearedData
func (d *ValuationClearedData) EventType() EventType {
	return ValuationCleared
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
