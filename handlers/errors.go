package handlers

import (
	"errors"
	"net/http"

	"electrafusion-backend/logging"
	"electrafusion-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	codeInvalidRequest  = "InvalidRequest"
	codeTooManyRequests = "TooManyRequests"
	codeInternal        = "InternalError"
)

// statusFor 领域错误码对应的HTTP状态码
func statusFor(code string) int {
	switch code {
	case models.ErrInvalidCredentials.Code, models.ErrUnauthenticated.Code:
		return http.StatusUnauthorized
	case models.ErrForbidden.Code, models.ErrPollNotVotable.Code, models.ErrNotVoter.Code:
		return http.StatusForbidden
	case models.ErrPollNotFound.Code:
		return http.StatusNotFound
	case models.ErrUserAlreadyExists.Code, models.ErrAlreadyVoted.Code, models.ErrInvalidTransition.Code:
		return http.StatusConflict
	case models.ErrUnsupportedMethod.Code:
		return http.StatusUnprocessableEntity
	case models.ErrSubmissionFailed.Code:
		return http.StatusServiceUnavailable
	case models.ErrInvalidPoll.Code, models.ErrEmptySelection.Code, models.ErrTooManySelections.Code,
		models.ErrUnknownOption.Code, models.ErrDuplicateSelection.Code, models.ErrAnonymousNotAllowed.Code,
		models.ErrPasswordTooLong.Code:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// abortWithError 写入错误响应并终止后续处理
func abortWithError(c *gin.Context, err error) {
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		message := err.Error()
		if domainErr.Code == models.ErrSubmissionFailed.Code {
			// 存储或锁的原始错误只写日志
			logging.For("handlers", "abortWithError").WithFields(logrus.Fields{
				"path":  c.FullPath(),
				"error": err,
			}).Warn("选票提交失败")
			message = domainErr.Message
		}
		c.AbortWithStatusJSON(statusFor(domainErr.Code), gin.H{
			"error":   domainErr.Code,
			"message": message,
		})
		return
	}

	logging.For("handlers", "abortWithError").WithFields(logrus.Fields{
		"path":  c.FullPath(),
		"error": err,
	}).Error("未预期的错误")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   codeInternal,
		"message": "internal server error",
	})
}

func abortInvalidRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   codeInvalidRequest,
		"message": err.Error(),
	})
}
