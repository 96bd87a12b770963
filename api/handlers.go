package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"hintro-api/domain"
)

const requestBodyMaxSize = 256 * 1024 // 256 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc BoardService, auth Authenticator, subs Subscriptions, logger *log.Logger) {
	e.POST("/api/boards", createBoard(svc, auth))
	e.GET("/api/boards", myBoards(svc, auth))
	e.GET("/api/boards/:id", getBoard(svc, auth, logger))
	e.PUT("/api/boards/:id", updateBoard(svc, auth))
	e.DELETE("/api/boards/:id", deleteBoard(svc, auth))
	e.POST("/api/boards/join/:token", joinBoard(svc, auth))
	e.GET("/api/boards/:id/activities", boardActivities(svc, auth))
	e.GET("/api/boards/:id/stream", streamBoard(svc, auth, subs))

	e.POST("/api/lists", createList(svc, auth))
	e.PUT("/api/lists/:id", updateList(svc, auth))
	e.DELETE("/api/lists/:id", deleteList(svc, auth))

	e.POST("/api/tasks", createTask(svc, auth))
	e.PUT("/api/tasks/:id", updateTask(svc, auth))
	e.DELETE("/api/tasks/:id", deleteTask(svc, auth))

	e.GET("/healthz", healthz())
}

type confirmation struct {
	Message string `json:"message"`
}

type joinResponse struct {
	Message string `json:"message"`
	BoardID string `json:"boardId"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// writeServiceError maps the domain taxonomy onto HTTP statuses. Unexpected
// failures are logged and surfaced without internal detail.
func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, confirmation{Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		return c.JSON(http.StatusForbidden, confirmation{Message: err.Error()})
	case errors.Is(err, domain.ErrValidation):
		return c.JSON(http.StatusBadRequest, confirmation{Message: err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, confirmation{Message: "internal error"})
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func createBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		b, err := svc.CreateBoard(c.Request().Context(), userID, body.Title)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusCreated, b)
	}
}

func myBoards(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boards, err := svc.MyBoards(c.Request().Context(), userID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, boards)
	}
}

func getBoard(svc BoardService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newBoardRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		snap, fetchErr := svc.Snapshot(c.Request().Context(), userID, c.Param("id"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("fetch")
			err = writeServiceError(c, fetchErr)
			return err
		}
		metrics.SetReturned(len(snap.Lists), len(snap.Tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snap)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func updateBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		b, err := svc.UpdateBoard(c.Request().Context(), userID, c.Param("id"), body.Title)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, b)
	}
}

func deleteBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := svc.DeleteBoard(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, confirmation{Message: "board deleted"})
	}
}

func joinBoard(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		res, err := svc.JoinByToken(c.Request().Context(), userID, c.Param("token"))
		if err != nil {
			return writeServiceError(c, err)
		}
		if res.AlreadyMember {
			return c.JSON(http.StatusOK, joinResponse{Message: "already a member of this board", BoardID: res.BoardID})
		}
		return c.JSON(http.StatusCreated, joinResponse{Message: "joined board", BoardID: res.BoardID})
	}
}

func boardActivities(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		records, err := svc.Activities(c.Request().Context(), userID, c.Param("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, records)
	}
}

func createList(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			BoardID string `json:"boardId"`
			Title   string `json:"title"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		l, err := svc.CreateList(c.Request().Context(), userID, body.BoardID, body.Title)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusCreated, l)
	}
}

func updateList(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var upd domain.ListUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		l, err := svc.UpdateList(c.Request().Context(), userID, c.Param("id"), upd)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, l)
	}
}

func deleteList(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := svc.DeleteList(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, confirmation{Message: "list deleted"})
	}
}

func createTask(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var in domain.TaskInput
		if err := decodeBody(c, &in); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		t, err := svc.CreateTask(c.Request().Context(), userID, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func updateTask(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var upd domain.TaskUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		t, err := svc.UpdateTask(c.Request().Context(), userID, c.Param("id"), upd)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(svc BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := svc.DeleteTask(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusOK, confirmation{Message: "task deleted"})
	}
}
