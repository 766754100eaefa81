package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// An empty Message echoes the error text.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// commonCases apply to every admin endpoint after the handler's own cases.
var commonCases = []ErrorCase{
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest},
	{Err: usecase.ErrSystemEntity, Status: http.StatusConflict, Message: "system entries cannot be modified"},
	{Err: usecase.ErrForbidden, Status: http.StatusForbidden},
}

// RespondWithMappedError resolves err against cases, then the common cases,
// or falls back to a generic response. Unmapped errors are attached to the
// gin context so the access log records them.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, set := range [][]ErrorCase{cases, commonCases} {
		for _, cs := range set {
			if cs.Err == nil || !errors.Is(err, cs.Err) {
				continue
			}
			msg := cs.Message
			if msg == "" {
				msg = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, msg))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// pathID parses the :id route parameter, answering 400 when it is not a positive integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid id"))
		return 0, false
	}
	return id, true
}
