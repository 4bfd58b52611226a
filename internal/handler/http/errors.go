package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/norandomtechie/queup/internal/service"
)

// HandleServiceError 把业务错误翻译成 HTTP 状态码。
// 对客户端只暴露分类信息，具体原因留在服务端日志里。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrBadRequest):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyExists),
		errors.Is(err, service.ErrDuplicate),
		errors.Is(err, service.ErrLastOwner),
		errors.Is(err, service.ErrConflict):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRoomPermanent):
		ErrorResponse(c, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, service.ErrRoomLocked):
		ErrorResponse(c, http.StatusLocked, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		ErrorResponse(c, http.StatusTooManyRequests, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
