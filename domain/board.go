package domain

import "time"

// Role describes a user's membership level on a board.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// EntityType identifies the kind of entity an activity record refers to.
type EntityType string

const (
	EntityTask  EntityType = "task"
	EntityList  EntityType = "list"
	EntityBoard EntityType = "board"
)

// Board is a shared workspace owning lists, tasks and memberships.
type Board struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Owner        string `json:"owner"`
	MembersCount int    `json:"membersCount"`
	ShareToken   string `json:"shareToken,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// BoardMember links a user to a board. At most one membership exists per
// (board, user) pair.
type BoardMember struct {
	BoardID   string `json:"boardId"`
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
	CreatedAt int64  `json:"createdAt"`
}

// List is an ordered column of tasks within a board. Display order among the
// lists of one board is ascending Position with CreatedAt, then ID, breaking
// ties.
type List struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	CreatedAt int64  `json:"createdAt"`
}

// Label is a colored tag attached to a task.
type Label struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// ChecklistItem is a single entry of a task checklist.
type ChecklistItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task is a unit of work. A task belongs to exactly one list at a time;
// Position orders it among the tasks of that list.
type Task struct {
	ID          string          `json:"id"`
	BoardID     string          `json:"boardId"`
	ListID      string          `json:"listId"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Assignee    string          `json:"assignee,omitempty"`
	Position    int             `json:"position"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Labels      []Label         `json:"labels,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
}

// Activity is an immutable append-only audit record. It references entities
// but does not own them; records outlive the entities they describe.
type Activity struct {
	ID         string     `json:"id"`
	BoardID    string     `json:"boardId"`
	UserID     string     `json:"userId"`
	Action     string     `json:"action"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	CreatedAt  int64      `json:"createdAt"`
}

// BoardSnapshot is the full authoritative state of one board as served to a
// client on join. Clients never reconstruct this from event history.
type BoardSnapshot struct {
	Board
	Lists []List `json:"lists"`
	Tasks []Task `json:"tasks"`
}

// ListUpdate carries the optional fields of a list mutation. Nil fields are
// left untouched.
type ListUpdate struct {
	Title    *string `json:"title,omitempty"`
	Position *int    `json:"position,omitempty"`
}

// TaskInput carries the fields accepted when creating a task.
type TaskInput struct {
	BoardID     string     `json:"boardId"`
	ListID      string     `json:"listId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// TaskUpdate carries the optional fields of a task mutation. Setting ListID
// together with Position is the drag-end move: both are applied atomically.
type TaskUpdate struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Assignee    *string          `json:"assignee,omitempty"`
	DueDate     *time.Time       `json:"dueDate,omitempty"`
	ListID      *string          `json:"listId,omitempty"`
	Position    *int             `json:"position,omitempty"`
	Labels      *[]Label         `json:"labels,omitempty"`
	Checklist   *[]ChecklistItem `json:"checklist,omitempty"`
}
