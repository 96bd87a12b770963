package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const keepAliveInterval = 25 * time.Second

// streamBoard subscribes the connection to one board's events and forwards
// them as server-sent events. Opening the stream is joining the board,
// closing it is leaving: the subscription exists exactly as long as the
// connection. Events carry the entity (or bare id for deletions); the client
// fetches the full board separately, the stream never replays history.
func streamBoard(svc BoardService, auth Authenticator, subs Subscriptions) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		boardID := c.Param("id")
		if err := svc.EnsureMember(c.Request().Context(), userID, boardID); err != nil {
			return writeServiceError(c, err)
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := c.Request().Context()
		ch := subs.Subscribe(boardID)
		defer subs.Unsubscribe(boardID, ch)

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-ch:
				if _, err := c.Response().Write([]byte("event: " + string(ev.Kind) + "\ndata: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(ev.Payload); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case <-keepAlive.C:
				if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
