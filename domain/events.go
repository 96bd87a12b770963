package domain

import "encoding/json"

// EventKind enumerates the broadcast event types pushed to board subscribers.
type EventKind string

const (
	EventListCreated EventKind = "listCreated"
	EventListUpdated EventKind = "listUpdated"
	EventListDeleted EventKind = "listDeleted"
	EventTaskCreated EventKind = "taskCreated"
	EventTaskUpdated EventKind = "taskUpdated"
	EventTaskDeleted EventKind = "taskDeleted"
	EventNewActivity EventKind = "newActivity"
)

// Event describes one committed mutation on a board. Created and updated
// events carry the full entity; deleted events carry the bare id. Events are
// fire-and-forget: there is no persistence or replay, a subscriber that joins
// late fetches the full board instead.
type Event struct {
	Kind    EventKind       `json:"kind"`
	BoardID string          `json:"boardId"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent builds an event with the payload marshaled in place.
func NewEvent(kind EventKind, boardID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, BoardID: boardID, Payload: data}, nil
}

// List decodes the payload of a list event.
func (e Event) List() (List, error) {
	var l List
	err := json.Unmarshal(e.Payload, &l)
	return l, err
}

// Task decodes the payload of a task event.
func (e Event) Task() (Task, error) {
	var t Task
	err := json.Unmarshal(e.Payload, &t)
	return t, err
}

// Activity decodes the payload of a newActivity event.
func (e Event) Activity() (Activity, error) {
	var a Activity
	err := json.Unmarshal(e.Payload, &a)
	return a, err
}

// EntityID decodes the payload of a deletion event.
func (e Event) EntityID() (string, error) {
	var id string
	err := json.Unmarshal(e.Payload, &id)
	return id, err
}
