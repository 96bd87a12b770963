package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"hintro-api/board"
	"hintro-api/domain"
)

type mockService struct {
	board      *domain.Board
	boards     []domain.Board
	snapshot   *domain.BoardSnapshot
	list       *domain.List
	task       *domain.Task
	activities []domain.Activity
	join       *board.JoinResult
	err        error

	lastBoardID string
	lastTitle   string
	lastToken   string
	lastListUpd domain.ListUpdate
	lastTaskUpd domain.TaskUpdate
	lastTaskIn  domain.TaskInput
}

func (m *mockService) CreateBoard(_ context.Context, _, title string) (*domain.Board, error) {
	m.lastTitle = title
	return m.board, m.err
}

func (m *mockService) MyBoards(_ context.Context, _ string) ([]domain.Board, error) {
	return m.boards, m.err
}

func (m *mockService) Snapshot(_ context.Context, _, boardID string) (*domain.BoardSnapshot, error) {
	m.lastBoardID = boardID
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

func (m *mockService) UpdateBoard(_ context.Context, _, boardID, title string) (*domain.Board, error) {
	m.lastBoardID = boardID
	m.lastTitle = title
	return m.board, m.err
}

func (m *mockService) DeleteBoard(_ context.Context, _, boardID string) error {
	m.lastBoardID = boardID
	return m.err
}

func (m *mockService) JoinByToken(_ context.Context, _, token string) (*board.JoinResult, error) {
	m.lastToken = token
	if m.err != nil {
		return nil, m.err
	}
	return m.join, nil
}

func (m *mockService) EnsureMember(_ context.Context, _, boardID string) error {
	m.lastBoardID = boardID
	return m.err
}

func (m *mockService) CreateList(_ context.Context, _, boardID, title string) (*domain.List, error) {
	m.lastBoardID = boardID
	m.lastTitle = title
	return m.list, m.err
}

func (m *mockService) UpdateList(_ context.Context, _, _ string, upd domain.ListUpdate) (*domain.List, error) {
	m.lastListUpd = upd
	return m.list, m.err
}

func (m *mockService) DeleteList(_ context.Context, _, _ string) error { return m.err }

func (m *mockService) CreateTask(_ context.Context, _ string, in domain.TaskInput) (*domain.Task, error) {
	m.lastTaskIn = in
	return m.task, m.err
}

func (m *mockService) UpdateTask(_ context.Context, _, _ string, upd domain.TaskUpdate) (*domain.Task, error) {
	m.lastTaskUpd = upd
	return m.task, m.err
}

func (m *mockService) DeleteTask(_ context.Context, _, _ string) error { return m.err }

func (m *mockService) Activities(_ context.Context, _, boardID string) ([]domain.Activity, error) {
	m.lastBoardID = boardID
	return m.activities, m.err
}

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errors.New("missing authorization header")
	}
	return "user", nil
}

type captureAuth struct{ header string }

func (a *captureAuth) UserIDFromAuthHeader(h string) (string, error) {
	a.header = h
	if h == "" {
		return "", errors.New("missing authorization header")
	}
	return "user", nil
}

func newRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestCreateBoard(t *testing.T) {
	e := echo.New()
	svc := &mockService{board: &domain.Board{ID: "b1", Title: "Roadmap", ShareToken: "tok"}}
	req := newRequest(http.MethodPost, "/api/boards", `{"title":"Roadmap"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := createBoard(svc, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if svc.lastTitle != "Roadmap" {
		t.Fatalf("expected title forwarded, got %q", svc.lastTitle)
	}
	var b domain.Board
	if err := sonic.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if b.ID != "b1" || b.ShareToken != "tok" {
		t.Fatalf("unexpected board: %#v", b)
	}
}

func TestCreateBoardUnauthorized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/boards", strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := createBoard(&mockService{}, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestCreateBoardInvalidBody(t *testing.T) {
	e := echo.New()
	req := newRequest(http.MethodPost, "/api/boards", `{not json`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := createBoard(&mockService{}, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestGetBoardReturnsSnapshot(t *testing.T) {
	e := echo.New()
	svc := &mockService{snapshot: &domain.BoardSnapshot{
		Board: domain.Board{ID: "b1", Title: "Roadmap"},
		Lists: []domain.List{{ID: "l1", BoardID: "b1", Title: "Todo", Position: 1}},
		Tasks: []domain.Task{{ID: "t1", BoardID: "b1", ListID: "l1", Title: "T1", Position: 1}},
	}}
	req := newRequest(http.MethodGet, "/api/boards/b1", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("b1")

	if err := getBoard(svc, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if svc.lastBoardID != "b1" {
		t.Fatalf("expected board id forwarded, got %q", svc.lastBoardID)
	}
	var snap domain.BoardSnapshot
	if err := sonic.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snap.ID != "b1" || len(snap.Lists) != 1 || len(snap.Tasks) != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	testCases := map[string]struct {
		err  error
		code int
	}{
		"not_found":  {domain.NotFoundf("board", "b1"), http.StatusNotFound},
		"forbidden":  {domain.ErrForbidden, http.StatusForbidden},
		"validation": {domain.MissingField("title"), http.StatusBadRequest},
		"internal":   {errors.New("table offline"), http.StatusInternalServerError},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			svc := &mockService{err: tc.err}
			req := newRequest(http.MethodGet, "/api/boards/b1", "")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues("b1")

			if err := getBoard(svc, mockAuth{}, log.New())(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != tc.code {
				t.Fatalf("expected status %d got %d", tc.code, rec.Code)
			}
			if tc.code == http.StatusInternalServerError && !strings.Contains(rec.Body.String(), "internal error") {
				t.Fatalf("internal failures must not leak detail, got %s", rec.Body.String())
			}
		})
	}
}

func TestJoinBoardNewMember(t *testing.T) {
	e := echo.New()
	svc := &mockService{join: &board.JoinResult{BoardID: "b1"}}
	req := newRequest(http.MethodPost, "/api/boards/join/tok", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("token")
	c.SetParamValues("tok")

	if err := joinBoard(svc, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if svc.lastToken != "tok" {
		t.Fatalf("expected token forwarded, got %q", svc.lastToken)
	}
	var resp joinResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.BoardID != "b1" || resp.Message != "joined board" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestJoinBoardAlreadyMember(t *testing.T) {
	e := echo.New()
	svc := &mockService{join: &board.JoinResult{BoardID: "b1", AlreadyMember: true}}
	req := newRequest(http.MethodPost, "/api/boards/join/tok", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("token")
	c.SetParamValues("tok")

	if err := joinBoard(svc, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestUpdateListForwardsPartialUpdate(t *testing.T) {
	e := echo.New()
	svc := &mockService{list: &domain.List{ID: "l1", Position: 3}}
	req := newRequest(http.MethodPut, "/api/lists/l1", `{"position":3}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("l1")

	if err := updateList(svc, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if svc.lastListUpd.Position == nil || *svc.lastListUpd.Position != 3 {
		t.Fatalf("expected position forwarded, got %#v", svc.lastListUpd)
	}
	if svc.lastListUpd.Title != nil {
		t.Fatalf("absent fields must stay nil, got %#v", svc.lastListUpd)
	}
}

func TestUpdateTaskForwardsMove(t *testing.T) {
	e := echo.New()
	svc := &mockService{task: &domain.Task{ID: "t1", ListID: "l2", Position: 2}}
	req := newRequest(http.MethodPut, "/api/tasks/t1", `{"listId":"l2","position":2}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := updateTask(svc, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	upd := svc.lastTaskUpd
	if upd.ListID == nil || *upd.ListID != "l2" || upd.Position == nil || *upd.Position != 2 {
		t.Fatalf("expected list and position forwarded together, got %#v", upd)
	}
}

func TestCreateTaskForwardsInput(t *testing.T) {
	e := echo.New()
	svc := &mockService{task: &domain.Task{ID: "t1"}}
	req := newRequest(http.MethodPost, "/api/tasks", `{"boardId":"b1","listId":"l1","title":"T1"}`)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := createTask(svc, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	in := svc.lastTaskIn
	if in.BoardID != "b1" || in.ListID != "l1" || in.Title != "T1" {
		t.Fatalf("unexpected input: %#v", in)
	}
}

func TestDeleteTaskConfirmation(t *testing.T) {
	e := echo.New()
	req := newRequest(http.MethodDelete, "/api/tasks/t1", "")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := deleteTask(&mockService{}, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "task deleted") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

type fakeSubs struct {
	ch      chan domain.Event
	boardID string
	left    chan struct{}
}

func (f *fakeSubs) Subscribe(boardID string) chan domain.Event {
	f.boardID = boardID
	return f.ch
}

func (f *fakeSubs) Unsubscribe(string, chan domain.Event) { close(f.left) }

func TestStreamBoardDeliversEvents(t *testing.T) {
	e := echo.New()
	svc := &mockService{}
	subs := &fakeSubs{ch: make(chan domain.Event, 1), left: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	req := newRequest(http.MethodGet, "/api/boards/b1/stream", "").WithContext(ctx)
	rec := flushRecorder{httptest.NewRecorder()}
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("b1")

	ev, err := domain.NewEvent(domain.EventTaskCreated, "b1", domain.Task{ID: "t1", Title: "T1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	subs.ch <- ev

	done := make(chan error, 1)
	go func() { done <- streamBoard(svc, mockAuth{}, subs)(c) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not exit on disconnect")
	}
	select {
	case <-subs.left:
	case <-time.After(time.Second):
		t.Fatal("stream did not unsubscribe on disconnect")
	}

	if subs.boardID != "b1" {
		t.Fatalf("expected subscription to board b1, got %q", subs.boardID)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: taskCreated") || !strings.Contains(body, `"id":"t1"`) {
		t.Fatalf("expected event in stream, got %s", body)
	}
}

func TestStreamBoardRequiresMembership(t *testing.T) {
	e := echo.New()
	svc := &mockService{err: domain.ErrForbidden}
	req := newRequest(http.MethodGet, "/api/boards/b1/stream", "")
	rec := flushRecorder{httptest.NewRecorder()}
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("b1")

	if err := streamBoard(svc, mockAuth{}, &fakeSubs{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestStreamBoardTokenQueryFallback(t *testing.T) {
	e := echo.New()
	svc := &mockService{err: domain.ErrForbidden} // stop before the stream loop
	auth := &captureAuth{}
	req := httptest.NewRequest(http.MethodGet, "/api/boards/b1/stream?token=abc", nil)
	rec := flushRecorder{httptest.NewRecorder()}
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("b1")

	if err := streamBoard(svc, auth, &fakeSubs{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if auth.header != "Bearer abc" {
		t.Fatalf("expected query token promoted to bearer header, got %q", auth.header)
	}
}
