package v1

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shenikar/resqlink/internal/apperr"
	"github.com/sirupsen/logrus"
)

// respondError выбирает HTTP статус по коду ошибки приложения
func respondError(c *gin.Context, log *logrus.Entry, err error) {
	appErr, _ := apperr.As(err)

	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		log.WithError(err).Warn("Request rejected by validation")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   appErr.Message,
			Field:   appErr.Field,
			Allowed: appErr.Allowed,
		})
	case apperr.CodeBadIdentifier:
		log.WithError(err).Warn("Malformed incident ID")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: appErr.Message})
	case apperr.CodeNotFound:
		log.WithError(err).Warn("Incident not found")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "incident not found"})
	case apperr.CodeUnavailable:
		log.WithError(err).Error("Store unavailable")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "store unavailable, please retry",
			Retryable: true,
		})
	default:
		log.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// validationError переводит первую ошибку validator в ошибку поля запроса
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("", "invalid request body")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation(fe.Field(), fmt.Sprintf("%s is required", fe.Field()))
	case "min":
		return apperr.Validation(fe.Field(), fmt.Sprintf("%s must contain at least %s item(s)", fe.Field(), fe.Param()))
	case "max":
		return apperr.Validation(fe.Field(), fmt.Sprintf("%s must contain at most %s item(s)", fe.Field(), fe.Param()))
	default:
		return apperr.Validation(fe.Field(), fmt.Sprintf("%s is invalid", fe.Field()))
	}
}
