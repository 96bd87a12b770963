// Package storage persists board state in Azure Table storage and offers a
// redis read-through cache on top. Partitioning keeps every per-board read a
// single partition scan: lists, tasks and activities are partitioned by board
// id, memberships by user id so the boards-of-user query is a point scan too.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"hintro-api/domain"
)

const boardRowKey = "board"

// Tables names the five tables used by the service.
type Tables struct {
	Boards     string
	Members    string
	Lists      string
	Tasks      string
	Activities string
}

// Storage provides access to the underlying table storage.
type Storage struct {
	boards     *aztables.Client
	members    *aztables.Client
	lists      *aztables.Client
	tasks      *aztables.Client
	activities *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		boards:     svc.NewClient(tables.Boards),
		members:    svc.NewClient(tables.Members),
		lists:      svc.NewClient(tables.Lists),
		tasks:      svc.NewClient(tables.Tasks),
		activities: svc.NewClient(tables.Activities),
	}, nil
}

type boardEntity struct {
	aztables.Entity
	Title        string `json:"Title"`
	Owner        string `json:"Owner"`
	MembersCount int    `json:"MembersCount"`
	ShareToken   string `json:"ShareToken"`
	CreatedAt    int64  `json:"CreatedAt"`
}

type memberEntity struct {
	aztables.Entity
	Role      string `json:"Role"`
	CreatedAt int64  `json:"CreatedAt"`
}

type listEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Position  int    `json:"Position"`
	CreatedAt int64  `json:"CreatedAt"`
}

type taskEntity struct {
	aztables.Entity
	ListID      string `json:"ListId"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Assignee    string `json:"Assignee"`
	Position    int    `json:"Position"`
	DueDate     string `json:"DueDate"`
	Labels      string `json:"Labels"`
	Checklist   string `json:"Checklist"`
	CreatedBy   string `json:"CreatedBy"`
	CreatedAt   int64  `json:"CreatedAt"`
}

type activityEntity struct {
	aztables.Entity
	UserID     string `json:"UserId"`
	Action     string `json:"Action"`
	EntityType string `json:"EntityType"`
	EntityID   string `json:"EntityId"`
	CreatedAt  int64  `json:"CreatedAt"`
}

// SaveBoard creates or replaces a board record.
func (s *Storage) SaveBoard(ctx context.Context, b domain.Board) error {
	ent := boardEntity{
		Entity:       aztables.Entity{PartitionKey: b.ID, RowKey: boardRowKey},
		Title:        b.Title,
		Owner:        b.Owner,
		MembersCount: b.MembersCount,
		ShareToken:   b.ShareToken,
		CreatedAt:    b.CreatedAt,
	}
	return s.upsert(ctx, s.boards, ent)
}

// GetBoard retrieves a board, returning nil when it does not exist.
func (s *Storage) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	resp, err := s.boards.GetEntity(ctx, boardID, boardRowKey, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent boardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	b := boardFromEntity(ent)
	return &b, nil
}

// BoardByShareToken resolves an invitation token to its board.
func (s *Storage) BoardByShareToken(ctx context.Context, token string) (*domain.Board, error) {
	filter := "ShareToken eq '" + token + "'"
	pager := s.boards.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent boardEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			b := boardFromEntity(ent)
			return &b, nil
		}
	}
	return nil, nil
}

// DeleteBoard removes the board together with its members, lists and tasks.
// Activity records are kept as history.
func (s *Storage) DeleteBoard(ctx context.Context, boardID string) error {
	if _, err := s.boards.DeleteEntity(ctx, boardID, boardRowKey, nil); err != nil && !isNotFound(err) {
		return err
	}
	if err := s.deletePartition(ctx, s.lists, boardID, ""); err != nil {
		return err
	}
	if err := s.deletePartition(ctx, s.tasks, boardID, ""); err != nil {
		return err
	}
	// Memberships are partitioned by user; collect them by row key.
	filter := "RowKey eq '" + boardID + "'"
	pager := s.members.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			var ent memberEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return err
			}
			if _, err := s.members.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil && !isNotFound(err) {
				return err
			}
		}
	}
	return nil
}

// SaveMember creates or replaces a membership row.
func (s *Storage) SaveMember(ctx context.Context, m domain.BoardMember) error {
	ent := memberEntity{
		Entity:    aztables.Entity{PartitionKey: m.UserID, RowKey: m.BoardID},
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
	return s.upsert(ctx, s.members, ent)
}

// GetMember retrieves one membership row, nil when absent. The (user, board)
// point read doubles as the uniqueness guarantee: there is exactly one row per
// pair.
func (s *Storage) GetMember(ctx context.Context, boardID, userID string) (*domain.BoardMember, error) {
	resp, err := s.members.GetEntity(ctx, userID, boardID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent memberEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &domain.BoardMember{
		BoardID:   ent.RowKey,
		UserID:    ent.PartitionKey,
		Role:      domain.Role(ent.Role),
		CreatedAt: ent.CreatedAt,
	}, nil
}

// MemberBoardIDs returns the ids of every board the user belongs to.
func (s *Storage) MemberBoardIDs(ctx context.Context, userID string) ([]string, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.members.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	ids := []string{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent memberEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			ids = append(ids, ent.RowKey)
		}
	}
	return ids, nil
}

// SaveList creates or replaces a list.
func (s *Storage) SaveList(ctx context.Context, l domain.List) error {
	ent := listEntity{
		Entity:    aztables.Entity{PartitionKey: l.BoardID, RowKey: l.ID},
		Title:     l.Title,
		Position:  l.Position,
		CreatedAt: l.CreatedAt,
	}
	return s.upsert(ctx, s.lists, ent)
}

// GetList retrieves a list by id alone, nil when absent.
func (s *Storage) GetList(ctx context.Context, listID string) (*domain.List, error) {
	filter := "RowKey eq '" + listID + "'"
	pager := s.lists.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent listEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			l := listFromEntity(ent)
			return &l, nil
		}
	}
	return nil, nil
}

// DeleteList removes the list and cascades to its tasks.
func (s *Storage) DeleteList(ctx context.Context, boardID, listID string) error {
	if _, err := s.lists.DeleteEntity(ctx, boardID, listID, nil); err != nil && !isNotFound(err) {
		return err
	}
	return s.deletePartition(ctx, s.tasks, boardID, listID)
}

// ListsForBoard returns all lists of a board, unordered.
func (s *Storage) ListsForBoard(ctx context.Context, boardID string) ([]domain.List, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.lists.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	lists := []domain.List{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent listEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			lists = append(lists, listFromEntity(ent))
		}
	}
	return lists, nil
}

// SaveTask creates or replaces a task.
func (s *Storage) SaveTask(ctx context.Context, t domain.Task) error {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.BoardID, RowKey: t.ID},
		ListID:      t.ListID,
		Title:       t.Title,
		Description: t.Description,
		Assignee:    t.Assignee,
		Position:    t.Position,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.UTC().Format(time.RFC3339)
	}
	if len(t.Labels) > 0 {
		data, err := json.Marshal(t.Labels)
		if err != nil {
			return err
		}
		ent.Labels = string(data)
	}
	if len(t.Checklist) > 0 {
		data, err := json.Marshal(t.Checklist)
		if err != nil {
			return err
		}
		ent.Checklist = string(data)
	}
	return s.upsert(ctx, s.tasks, ent)
}

// GetTask retrieves a task by id alone, nil when absent.
func (s *Storage) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	filter := "RowKey eq '" + taskID + "'"
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			t, err := taskFromEntity(ent)
			if err != nil {
				return nil, err
			}
			return &t, nil
		}
	}
	return nil, nil
}

// DeleteTask removes a single task.
func (s *Storage) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if _, err := s.tasks.DeleteEntity(ctx, boardID, taskID, nil); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// TasksForBoard returns all tasks of a board, unordered.
func (s *Storage) TasksForBoard(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			t, err := taskFromEntity(ent)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// InsertActivity appends an audit record. Records are immutable; AddEntity
// rejects duplicates instead of overwriting.
func (s *Storage) InsertActivity(ctx context.Context, a domain.Activity) error {
	ent := activityEntity{
		Entity:     aztables.Entity{PartitionKey: a.BoardID, RowKey: a.ID},
		UserID:     a.UserID,
		Action:     a.Action,
		EntityType: string(a.EntityType),
		EntityID:   a.EntityID,
		CreatedAt:  a.CreatedAt,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.activities.AddEntity(ctx, payload, nil)
	return err
}

// ActivitiesForBoard returns the newest records first, capped to limit.
func (s *Storage) ActivitiesForBoard(ctx context.Context, boardID string, limit int) ([]domain.Activity, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.activities.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	records := []domain.Activity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent activityEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			records = append(records, domain.Activity{
				ID:         ent.RowKey,
				BoardID:    ent.PartitionKey,
				UserID:     ent.UserID,
				Action:     ent.Action,
				EntityType: domain.EntityType(ent.EntityType),
				EntityID:   ent.EntityID,
				CreatedAt:  ent.CreatedAt,
			})
		}
	}
	domain.SortActivitiesNewestFirst(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Storage) upsert(ctx context.Context, table *aztables.Client, ent any) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = table.UpsertEntity(ctx, payload, nil)
	return err
}

// deletePartition removes every entity of a partition, optionally narrowed to
// tasks of one list.
func (s *Storage) deletePartition(ctx context.Context, table *aztables.Client, partition, listID string) error {
	filter := "PartitionKey eq '" + partition + "'"
	if listID != "" {
		filter += " and ListId eq '" + listID + "'"
	}
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			var ent aztables.Entity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return err
			}
			if _, err := table.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil && !isNotFound(err) {
				return err
			}
		}
	}
	return nil
}

func boardFromEntity(ent boardEntity) domain.Board {
	return domain.Board{
		ID:           ent.PartitionKey,
		Title:        ent.Title,
		Owner:        ent.Owner,
		MembersCount: ent.MembersCount,
		ShareToken:   ent.ShareToken,
		CreatedAt:    ent.CreatedAt,
	}
}

func listFromEntity(ent listEntity) domain.List {
	return domain.List{
		ID:        ent.RowKey,
		BoardID:   ent.PartitionKey,
		Title:     ent.Title,
		Position:  ent.Position,
		CreatedAt: ent.CreatedAt,
	}
}

func taskFromEntity(ent taskEntity) (domain.Task, error) {
	t := domain.Task{
		ID:          ent.RowKey,
		BoardID:     ent.PartitionKey,
		ListID:      ent.ListID,
		Title:       ent.Title,
		Description: ent.Description,
		Assignee:    ent.Assignee,
		Position:    ent.Position,
		CreatedBy:   ent.CreatedBy,
		CreatedAt:   ent.CreatedAt,
	}
	if ent.DueDate != "" {
		due, err := time.Parse(time.RFC3339, ent.DueDate)
		if err != nil {
			return domain.Task{}, err
		}
		t.DueDate = &due
	}
	if ent.Labels != "" {
		if err := json.Unmarshal([]byte(ent.Labels), &t.Labels); err != nil {
			return domain.Task{}, err
		}
	}
	if ent.Checklist != "" {
		if err := json.Unmarshal([]byte(ent.Checklist), &t.Checklist); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
