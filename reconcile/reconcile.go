// Package reconcile maintains a client-side replica of one board. While a
// drag gesture is in progress, pointer-over movements reorder the in-memory
// slices only; nothing is persisted until the drop, which yields the single
// mutation the caller sends to the server. Broadcast events merge into the
// same replica by id, so the echo of the client's own mutation is harmless.
package reconcile

import (
	"errors"
	"sync"

	"hintro-api/domain"
)

// Kind discriminates draggable entities.
type Kind string

const (
	KindList Kind = "list"
	KindTask Kind = "task"
)

var (
	// ErrDragInProgress is returned by BeginDrag when a gesture is already active.
	ErrDragInProgress = errors.New("drag already in progress")
	// ErrNoDrag is returned by gesture calls outside an active drag.
	ErrNoDrag = errors.New("no drag in progress")
	// ErrUnknownEntity is returned when the dragged id is not present locally.
	ErrUnknownEntity = errors.New("unknown entity")
)

// Mutation is the persistence call produced by a completed drag: an update of
// the moved entity's position, and for cross-list task moves its listId too.
type Mutation struct {
	Kind     Kind
	ID       string
	ListID   string // target list for task moves, empty for list moves
	Position int
}

type drag struct {
	kind       Kind
	id         string
	fromListID string
	fromIndex  int
}

// BoardView is the two-layer client state: the confirmed base replica mutated
// only by Load and ApplyEvent, plus the transient drag overlay expressed as
// local slice order. Safe for use from a render goroutine and an event
// goroutine concurrently.
type BoardView struct {
	mu    sync.Mutex
	board domain.Board
	lists []domain.List
	tasks []domain.Task
	drag  *drag

	activities []domain.Activity
}

// NewBoardView creates an empty view; call Load with the fetched snapshot.
func NewBoardView() *BoardView {
	return &BoardView{}
}

// Load replaces the replica with a full authoritative snapshot. Any drag in
// progress is abandoned.
func (v *BoardView) Load(snap domain.BoardSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.board = snap.Board
	v.lists = append([]domain.List(nil), snap.Lists...)
	v.tasks = append([]domain.Task(nil), snap.Tasks...)
	domain.SortLists(v.lists)
	domain.SortTasks(v.tasks)
	v.drag = nil
}

// Board returns the board header.
func (v *BoardView) Board() domain.Board {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.board
}

// Lists returns the lists in display order.
func (v *BoardView) Lists() []domain.List {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.List(nil), v.lists...)
}

// TasksIn returns the tasks of one list in display order.
func (v *BoardView) TasksIn(listID string) []domain.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	return domain.TasksInList(v.tasks, listID)
}

// Activities returns the known activity records, newest first.
func (v *BoardView) Activities() []domain.Activity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Activity(nil), v.activities...)
}

// BeginDrag starts a gesture for the given entity.
func (v *BoardView) BeginDrag(kind Kind, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drag != nil {
		return ErrDragInProgress
	}
	switch kind {
	case KindList:
		idx := v.listIndex(id)
		if idx < 0 {
			return ErrUnknownEntity
		}
		v.drag = &drag{kind: kind, id: id, fromIndex: idx}
	case KindTask:
		t, _ := v.taskByID(id)
		if t == nil {
			return ErrUnknownEntity
		}
		v.drag = &drag{kind: kind, id: id, fromListID: t.ListID, fromIndex: v.taskIndexInList(t.ListID, id)}
	default:
		return ErrUnknownEntity
	}
	return nil
}

// DragOverList handles the dragged entity hovering a list: a dragged list is
// moved next to it, a dragged task is adopted at the end of it. Local only.
func (v *BoardView) DragOverList(listID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drag == nil {
		return ErrNoDrag
	}
	overIdx := v.listIndex(listID)
	if overIdx < 0 {
		return ErrUnknownEntity
	}
	switch v.drag.kind {
	case KindList:
		from := v.listIndex(v.drag.id)
		if from >= 0 && from != overIdx {
			move(v.lists, from, overIdx)
		}
	case KindTask:
		t, _ := v.taskByID(v.drag.id)
		if t != nil && t.ListID != listID {
			t.ListID = listID
		}
	}
	return nil
}

// DragOverTask handles a dragged task hovering another task: the dragged task
// adopts the other's list and takes its place. Local only.
func (v *BoardView) DragOverTask(overTaskID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.drag == nil {
		return ErrNoDrag
	}
	if v.drag.kind != KindTask || v.drag.id == overTaskID {
		return nil
	}
	active, activeIdx := v.taskByID(v.drag.id)
	over, overIdx := v.taskByID(overTaskID)
	if active == nil || over == nil {
		return ErrUnknownEntity
	}
	if active.ListID != over.ListID {
		active.ListID = over.ListID
	}
	move(v.tasks, activeIdx, overIdx)
	return nil
}

// Drop ends the gesture. When the entity rests at a new parent or index the
// returned mutation carries the final index converted to a position; when
// nothing effectively moved the gesture is a no-op and no call is issued.
func (v *BoardView) Drop() (*Mutation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	d := v.drag
	v.drag = nil
	if d == nil {
		return nil, false
	}
	switch d.kind {
	case KindList:
		idx := v.listIndex(d.id)
		if idx < 0 || idx == d.fromIndex {
			return nil, false
		}
		return &Mutation{Kind: KindList, ID: d.id, Position: domain.PositionForIndex(idx)}, true
	case KindTask:
		t, _ := v.taskByID(d.id)
		if t == nil {
			return nil, false
		}
		idx := v.taskIndexInList(t.ListID, d.id)
		if t.ListID == d.fromListID && idx == d.fromIndex {
			return nil, false
		}
		m := &Mutation{Kind: KindTask, ID: d.id, Position: domain.PositionForIndex(idx)}
		if t.ListID != d.fromListID {
			m.ListID = t.ListID
		}
		return m, true
	}
	return nil, false
}

// CancelDrag abandons the gesture without issuing a call. The local overlay
// is not rolled back; the next authoritative event or fetch corrects it.
func (v *BoardView) CancelDrag() {
	v.mu.Lock()
	v.drag = nil
	v.mu.Unlock()
}

// ApplyEvent merges a broadcast event into the replica. Creations dedupe by
// id, updates replace by id, deletions remove by id; updates and deletions
// for locally unknown ids are ignored.
func (v *BoardView) ApplyEvent(ev domain.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch ev.Kind {
	case domain.EventListCreated:
		l, err := ev.List()
		if err != nil {
			return err
		}
		if v.listIndex(l.ID) >= 0 {
			return nil
		}
		v.lists = append(v.lists, l)
		domain.SortLists(v.lists)
	case domain.EventListUpdated:
		l, err := ev.List()
		if err != nil {
			return err
		}
		if idx := v.listIndex(l.ID); idx >= 0 {
			v.lists[idx] = l
			domain.SortLists(v.lists)
		}
	case domain.EventListDeleted:
		id, err := ev.EntityID()
		if err != nil {
			return err
		}
		if idx := v.listIndex(id); idx >= 0 {
			v.lists = append(v.lists[:idx], v.lists[idx+1:]...)
		}
		kept := v.tasks[:0]
		for _, t := range v.tasks {
			if t.ListID != id {
				kept = append(kept, t)
			}
		}
		v.tasks = kept
	case domain.EventTaskCreated:
		t, err := ev.Task()
		if err != nil {
			return err
		}
		if existing, _ := v.taskByID(t.ID); existing != nil {
			return nil
		}
		v.tasks = append(v.tasks, t)
		domain.SortTasks(v.tasks)
	case domain.EventTaskUpdated:
		t, err := ev.Task()
		if err != nil {
			return err
		}
		if _, idx := v.taskByID(t.ID); idx >= 0 {
			v.tasks[idx] = t
			domain.SortTasks(v.tasks)
		}
	case domain.EventTaskDeleted:
		id, err := ev.EntityID()
		if err != nil {
			return err
		}
		if _, idx := v.taskByID(id); idx >= 0 {
			v.tasks = append(v.tasks[:idx], v.tasks[idx+1:]...)
		}
	case domain.EventNewActivity:
		a, err := ev.Activity()
		if err != nil {
			return err
		}
		for _, existing := range v.activities {
			if existing.ID == a.ID {
				return nil
			}
		}
		v.activities = append([]domain.Activity{a}, v.activities...)
		if len(v.activities) > 50 {
			v.activities = v.activities[:50]
		}
	}
	return nil
}

func (v *BoardView) listIndex(id string) int {
	for i := range v.lists {
		if v.lists[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *BoardView) taskByID(id string) (*domain.Task, int) {
	for i := range v.tasks {
		if v.tasks[i].ID == id {
			return &v.tasks[i], i
		}
	}
	return nil, -1
}

// taskIndexInList returns the display index of a task among its list's tasks.
func (v *BoardView) taskIndexInList(listID, id string) int {
	idx := 0
	for i := range v.tasks {
		if v.tasks[i].ListID != listID {
			continue
		}
		if v.tasks[i].ID == id {
			return idx
		}
		idx++
	}
	return -1
}

// move shifts the element at from to index to, sliding the elements between.
func move[T any](s []T, from, to int) {
	item := s[from]
	if from < to {
		copy(s[from:], s[from+1:to+1])
	} else {
		copy(s[to+1:], s[to:from])
	}
	s[to] = item
}
