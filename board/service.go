// Package board implements the authoritative store of board, list and task
// state. The Service is the sole writer: every mutation resolves the target
// entity, recomputes positions, persists, and only then hands the result to
// the activity log and the broadcast publisher. Broadcast and activity
// failures never fail the caller's request.
package board

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"hintro-api/domain"
)

const activityPageSize = 50

// Storage abstracts persistence for the aggregate service. Implementations
// must serialize writes per entity; the service never holds locks across
// storage calls.
type Storage interface {
	SaveBoard(ctx context.Context, b domain.Board) error
	GetBoard(ctx context.Context, boardID string) (*domain.Board, error)
	BoardByShareToken(ctx context.Context, token string) (*domain.Board, error)
	// DeleteBoard removes the board together with its members, lists and tasks.
	DeleteBoard(ctx context.Context, boardID string) error

	SaveMember(ctx context.Context, m domain.BoardMember) error
	GetMember(ctx context.Context, boardID, userID string) (*domain.BoardMember, error)
	MemberBoardIDs(ctx context.Context, userID string) ([]string, error)

	SaveList(ctx context.Context, l domain.List) error
	GetList(ctx context.Context, listID string) (*domain.List, error)
	// DeleteList removes the list and cascades to all tasks whose listId matches.
	DeleteList(ctx context.Context, boardID, listID string) error
	ListsForBoard(ctx context.Context, boardID string) ([]domain.List, error)

	SaveTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	DeleteTask(ctx context.Context, boardID, taskID string) error
	TasksForBoard(ctx context.Context, boardID string) ([]domain.Task, error)

	InsertActivity(ctx context.Context, a domain.Activity) error
	ActivitiesForBoard(ctx context.Context, boardID string, limit int) ([]domain.Activity, error)
}

// Publisher delivers committed mutations to board subscribers. Publish must
// not block the caller; delivery is fire-and-forget.
type Publisher interface {
	Publish(ev domain.Event)
}

// Service executes all board mutations.
type Service struct {
	st     Storage
	pub    Publisher
	logger *log.Logger
	now    func() time.Time
}

// NewService creates the aggregate service.
func NewService(st Storage, pub Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{st: st, pub: pub, logger: logger, now: time.Now}
}

// JoinResult reports the outcome of resolving a share token.
type JoinResult struct {
	BoardID       string
	AlreadyMember bool
}

// CreateBoard creates a board owned by userID, adding the owner as admin.
func (s *Service) CreateBoard(ctx context.Context, userID, title string) (*domain.Board, error) {
	if title == "" {
		return nil, domain.MissingField("title")
	}
	now := s.now().UnixMilli()
	b := domain.Board{
		ID:           uuid.NewString(),
		Title:        title,
		Owner:        userID,
		MembersCount: 1,
		ShareToken:   newShareToken(),
		CreatedAt:    now,
	}
	if err := s.st.SaveBoard(ctx, b); err != nil {
		return nil, err
	}
	m := domain.BoardMember{BoardID: b.ID, UserID: userID, Role: domain.RoleAdmin, CreatedAt: now}
	if err := s.st.SaveMember(ctx, m); err != nil {
		return nil, err
	}
	return &b, nil
}

// MyBoards returns every board the user is a member of, newest first.
func (s *Service) MyBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	ids, err := s.st.MemberBoardIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	boards := make([]domain.Board, 0, len(ids))
	for _, id := range ids {
		b, err := s.st.GetBoard(ctx, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			// Membership row outliving a deleted board is tolerated.
			continue
		}
		if err := s.ensureShareToken(ctx, b); err != nil {
			return nil, err
		}
		boards = append(boards, *b)
	}
	sortBoardsNewestFirst(boards)
	return boards, nil
}

// Snapshot returns the board with its lists and tasks in display order.
func (s *Service) Snapshot(ctx context.Context, userID, boardID string) (*domain.BoardSnapshot, error) {
	b, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NotFoundf("board", boardID)
	}
	if err := s.requireMember(ctx, boardID, userID); err != nil {
		return nil, err
	}
	if err := s.ensureShareToken(ctx, b); err != nil {
		return nil, err
	}
	lists, err := s.st.ListsForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.st.TasksForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	domain.SortLists(lists)
	domain.SortTasks(tasks)
	return &domain.BoardSnapshot{Board: *b, Lists: lists, Tasks: tasks}, nil
}

// UpdateBoard renames a board.
func (s *Service) UpdateBoard(ctx context.Context, userID, boardID, title string) (*domain.Board, error) {
	if title == "" {
		return nil, domain.MissingField("title")
	}
	b, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NotFoundf("board", boardID)
	}
	if err := s.requireMember(ctx, boardID, userID); err != nil {
		return nil, err
	}
	b.Title = title
	if err := s.st.SaveBoard(ctx, *b); err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBoard removes a board and everything it owns. Only the owner may
// delete a board.
func (s *Service) DeleteBoard(ctx context.Context, userID, boardID string) error {
	b, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if b == nil {
		return domain.NotFoundf("board", boardID)
	}
	if b.Owner != userID {
		return fmt.Errorf("not the board owner: %w", domain.ErrForbidden)
	}
	return s.st.DeleteBoard(ctx, boardID)
}

// JoinByToken resolves a share token and adds the user as a member. Joining a
// board twice is a no-op returning the existing membership.
func (s *Service) JoinByToken(ctx context.Context, userID, token string) (*JoinResult, error) {
	if token == "" {
		return nil, domain.MissingField("token")
	}
	b, err := s.st.BoardByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NotFoundf("share token", token)
	}
	existing, err := s.st.GetMember(ctx, b.ID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &JoinResult{BoardID: b.ID, AlreadyMember: true}, nil
	}
	m := domain.BoardMember{BoardID: b.ID, UserID: userID, Role: domain.RoleMember, CreatedAt: s.now().UnixMilli()}
	if err := s.st.SaveMember(ctx, m); err != nil {
		return nil, err
	}
	b.MembersCount++
	if err := s.st.SaveBoard(ctx, *b); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, b.ID, userID, "joined the board", domain.EntityBoard, b.ID)
	return &JoinResult{BoardID: b.ID}, nil
}

// EnsureMember reports whether userID may observe boardID.
func (s *Service) EnsureMember(ctx context.Context, userID, boardID string) error {
	b, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if b == nil {
		return domain.NotFoundf("board", boardID)
	}
	return s.requireMember(ctx, boardID, userID)
}

// CreateList appends a list to a board.
func (s *Service) CreateList(ctx context.Context, userID, boardID, title string) (*domain.List, error) {
	if title == "" {
		return nil, domain.MissingField("title")
	}
	b, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NotFoundf("board", boardID)
	}
	if err := s.requireMember(ctx, boardID, userID); err != nil {
		return nil, err
	}
	siblings, err := s.st.ListsForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	l := domain.List{
		ID:        uuid.NewString(),
		BoardID:   boardID,
		Title:     title,
		Position:  domain.NextListPosition(siblings),
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.st.SaveList(ctx, l); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, boardID, userID, fmt.Sprintf("created list %q", title), domain.EntityList, l.ID)
	s.publish(domain.EventListCreated, boardID, l)
	return &l, nil
}

// UpdateList applies a partial update to a list. Setting Position is the
// drag-end reorder: the caller sends the final display index plus one and the
// value is stored as-is, other siblings are never renumbered.
func (s *Service) UpdateList(ctx context.Context, userID, listID string, upd domain.ListUpdate) (*domain.List, error) {
	l, err := s.st.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, domain.NotFoundf("list", listID)
	}
	if err := s.requireMember(ctx, l.BoardID, userID); err != nil {
		return nil, err
	}
	if upd.Title != nil {
		if *upd.Title == "" {
			return nil, domain.MissingField("title")
		}
		l.Title = *upd.Title
	}
	if upd.Position != nil {
		l.Position = *upd.Position
	}
	if err := s.st.SaveList(ctx, *l); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, l.BoardID, userID, fmt.Sprintf("updated list %q", l.Title), domain.EntityList, l.ID)
	s.publish(domain.EventListUpdated, l.BoardID, *l)
	return l, nil
}

// DeleteList removes a list and every task it contains.
func (s *Service) DeleteList(ctx context.Context, userID, listID string) error {
	l, err := s.st.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if l == nil {
		return domain.NotFoundf("list", listID)
	}
	if err := s.requireMember(ctx, l.BoardID, userID); err != nil {
		return err
	}
	if err := s.st.DeleteList(ctx, l.BoardID, listID); err != nil {
		return err
	}
	s.recordActivity(ctx, l.BoardID, userID, fmt.Sprintf("deleted list %q", l.Title), domain.EntityList, l.ID)
	s.publish(domain.EventListDeleted, l.BoardID, listID)
	return nil
}

// CreateTask appends a task to a list.
func (s *Service) CreateTask(ctx context.Context, userID string, in domain.TaskInput) (*domain.Task, error) {
	if in.Title == "" {
		return nil, domain.MissingField("title")
	}
	if in.ListID == "" {
		return nil, domain.MissingField("listId")
	}
	l, err := s.st.GetList(ctx, in.ListID)
	if err != nil {
		return nil, err
	}
	if l == nil || (in.BoardID != "" && l.BoardID != in.BoardID) {
		return nil, domain.NotFoundf("list", in.ListID)
	}
	if err := s.requireMember(ctx, l.BoardID, userID); err != nil {
		return nil, err
	}
	siblings, err := s.tasksForList(ctx, l.BoardID, in.ListID)
	if err != nil {
		return nil, err
	}
	t := domain.Task{
		ID:          uuid.NewString(),
		BoardID:     l.BoardID,
		ListID:      in.ListID,
		Title:       in.Title,
		Description: in.Description,
		Assignee:    in.Assignee,
		Position:    domain.NextTaskPosition(siblings),
		DueDate:     in.DueDate,
		CreatedBy:   userID,
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.st.SaveTask(ctx, t); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, t.BoardID, userID, fmt.Sprintf("created task %q", t.Title), domain.EntityTask, t.ID)
	s.publish(domain.EventTaskCreated, t.BoardID, t)
	return &t, nil
}

// UpdateTask applies a partial update to a task. Setting ListID moves the
// task: when the caller supplies no explicit position the task is appended to
// the target list, otherwise list and position change together atomically.
// Siblings left behind in the source list keep their positions; the resulting
// gaps do not affect relative order.
func (s *Service) UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (*domain.Task, error) {
	t, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.NotFoundf("task", taskID)
	}
	if err := s.requireMember(ctx, t.BoardID, userID); err != nil {
		return nil, err
	}
	if upd.Title != nil {
		if *upd.Title == "" {
			return nil, domain.MissingField("title")
		}
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Assignee != nil {
		t.Assignee = *upd.Assignee
	}
	if upd.DueDate != nil {
		t.DueDate = upd.DueDate
	}
	if upd.Labels != nil {
		t.Labels = *upd.Labels
	}
	if upd.Checklist != nil {
		t.Checklist = *upd.Checklist
	}
	if upd.ListID != nil && *upd.ListID != t.ListID {
		target, err := s.st.GetList(ctx, *upd.ListID)
		if err != nil {
			return nil, err
		}
		if target == nil || target.BoardID != t.BoardID {
			return nil, domain.NotFoundf("list", *upd.ListID)
		}
		t.ListID = target.ID
		if upd.Position == nil {
			siblings, err := s.tasksForList(ctx, t.BoardID, target.ID)
			if err != nil {
				return nil, err
			}
			t.Position = domain.NextTaskPosition(siblings)
		}
	}
	if upd.Position != nil {
		t.Position = *upd.Position
	}
	if err := s.st.SaveTask(ctx, *t); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, t.BoardID, userID, fmt.Sprintf("updated task %q", t.Title), domain.EntityTask, t.ID)
	s.publish(domain.EventTaskUpdated, t.BoardID, *t)
	return t, nil
}

// DeleteTask removes a single task.
func (s *Service) DeleteTask(ctx context.Context, userID, taskID string) error {
	t, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return domain.NotFoundf("task", taskID)
	}
	if err := s.requireMember(ctx, t.BoardID, userID); err != nil {
		return err
	}
	if err := s.st.DeleteTask(ctx, t.BoardID, taskID); err != nil {
		return err
	}
	s.recordActivity(ctx, t.BoardID, userID, fmt.Sprintf("deleted task %q", t.Title), domain.EntityTask, t.ID)
	s.publish(domain.EventTaskDeleted, t.BoardID, taskID)
	return nil
}

// Activities returns the most recent records for a board, newest first.
func (s *Service) Activities(ctx context.Context, userID, boardID string) ([]domain.Activity, error) {
	if err := s.EnsureMember(ctx, userID, boardID); err != nil {
		return nil, err
	}
	return s.st.ActivitiesForBoard(ctx, boardID, activityPageSize)
}

func (s *Service) requireMember(ctx context.Context, boardID, userID string) error {
	m, err := s.st.GetMember(ctx, boardID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("not a member of board %s: %w", boardID, domain.ErrForbidden)
	}
	return nil
}

func (s *Service) tasksForList(ctx context.Context, boardID, listID string) ([]domain.Task, error) {
	tasks, err := s.st.TasksForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return domain.TasksInList(tasks, listID), nil
}

// ensureShareToken backfills tokens for boards created before share links
// existed. Generated once, never rotated.
func (s *Service) ensureShareToken(ctx context.Context, b *domain.Board) error {
	if b.ShareToken != "" {
		return nil
	}
	b.ShareToken = newShareToken()
	return s.st.SaveBoard(ctx, *b)
}

// recordActivity appends an audit record and announces it to subscribers. A
// failed record is logged and swallowed; it never rolls back the mutation.
func (s *Service) recordActivity(ctx context.Context, boardID, userID, action string, et domain.EntityType, entityID string) {
	a := domain.Activity{
		ID:         uuid.NewString(),
		BoardID:    boardID,
		UserID:     userID,
		Action:     action,
		EntityType: et,
		EntityID:   entityID,
		CreatedAt:  s.now().UnixMilli(),
	}
	if err := s.st.InsertActivity(ctx, a); err != nil {
		s.logger.WithFields(log.Fields{"board": boardID, "action": action}).Warnf("activity record failed: %v", err)
		return
	}
	s.publish(domain.EventNewActivity, boardID, a)
}

// publish hands a committed mutation to the broadcaster. The mutation has
// already succeeded; failures here are logged, never surfaced.
func (s *Service) publish(kind domain.EventKind, boardID string, payload any) {
	if s.pub == nil {
		return
	}
	ev, err := domain.NewEvent(kind, boardID, payload)
	if err != nil {
		s.logger.Errorf("encode %s event for board %s: %v", kind, boardID, err)
		return
	}
	s.pub.Publish(ev)
}
