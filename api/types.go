package api

import (
	"context"

	"hintro-api/board"
	"hintro-api/domain"
)

// BoardService abstracts the aggregate store for handlers.
type BoardService interface {
	CreateBoard(ctx context.Context, userID, title string) (*domain.Board, error)
	MyBoards(ctx context.Context, userID string) ([]domain.Board, error)
	Snapshot(ctx context.Context, userID, boardID string) (*domain.BoardSnapshot, error)
	UpdateBoard(ctx context.Context, userID, boardID, title string) (*domain.Board, error)
	DeleteBoard(ctx context.Context, userID, boardID string) error
	JoinByToken(ctx context.Context, userID, token string) (*board.JoinResult, error)
	EnsureMember(ctx context.Context, userID, boardID string) error

	CreateList(ctx context.Context, userID, boardID, title string) (*domain.List, error)
	UpdateList(ctx context.Context, userID, listID string, upd domain.ListUpdate) (*domain.List, error)
	DeleteList(ctx context.Context, userID, listID string) error

	CreateTask(ctx context.Context, userID string, in domain.TaskInput) (*domain.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, upd domain.TaskUpdate) (*domain.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error

	Activities(ctx context.Context, userID, boardID string) ([]domain.Activity, error)
}

// Subscriptions is the hub surface the stream endpoint needs.
type Subscriptions interface {
	Subscribe(boardID string) chan domain.Event
	Unsubscribe(boardID string, ch chan domain.Event)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
