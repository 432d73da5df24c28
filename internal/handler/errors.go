package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// classify maps a service or engine error onto an HTTP status and API code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, session.ErrSessionLocked):
		return http.StatusConflict, response.ErrSessionLocked
	case errors.Is(err, session.ErrExamNotOpen):
		return http.StatusForbidden, response.ErrExamNotOpen
	case errors.Is(err, session.ErrExamClosed):
		return http.StatusForbidden, response.ErrExamClosed
	case errors.Is(err, session.ErrSubmitInFlight):
		return http.StatusConflict, response.ErrSubmitInFlight
	case errors.Is(err, session.ErrNoPendingSubmit), errors.Is(err, service.ErrConfirmRequired):
		return http.StatusConflict, response.ErrConfirmRequired
	case errors.Is(err, session.ErrRuntimeClosed):
		return http.StatusServiceUnavailable, response.ErrExamUnavailable
	}

	switch session.KindOf(err) {
	case session.LoadFailure:
		if errors.Is(err, repository.ErrNotFound) {
			return http.StatusNotFound, response.ErrExamUnavailable
		}
		return http.StatusServiceUnavailable, response.ErrExamUnavailable
	case session.SubmitFailure:
		return http.StatusServiceUnavailable, response.ErrSubmitFailed
	case session.ValidationFailure:
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer
	case session.PersistFailure:
		return http.StatusServiceUnavailable, response.ErrInternal
	}

	switch {
	case errors.Is(err, service.ErrNotExamAuthor):
		return http.StatusForbidden, response.ErrNotExamAuthor
	case errors.Is(err, service.ErrExamInUse):
		return http.StatusConflict, response.ErrExamInUse
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrNotLocked):
		return http.StatusConflict, response.ErrSessionNotLocked
	case errors.Is(err, service.ErrAlreadyGraded):
		return http.StatusConflict, response.ErrAlreadyGraded
	case errors.Is(err, service.ErrPointsRange):
		return http.StatusUnprocessableEntity, response.ErrPointsOutOfRange
	case errors.Is(err, service.ErrGradesPending):
		return http.StatusConflict, response.ErrGradesPending
	case errors.Is(err, service.ErrResultNotReady):
		return http.StatusNotFound, response.ErrResultNotReady
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, response.ErrConflict
	}
	return http.StatusInternalServerError, response.ErrInternal
}

const dashboardPath = session.DashboardPath

// lockedData tells the view where to go once its session is locked.
type lockedData struct {
	Redirect string `json:"redirect"`
}

// fail writes err as an API error. Internal errors are logged with the request.
func fail(c *gin.Context, err error) {
	status, code := classify(err)
	switch {
	case code == response.ErrSessionLocked:
		response.FailWithData(c, status, code, lockedData{Redirect: dashboardPath})
		return
	case status >= http.StatusInternalServerError:
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}
