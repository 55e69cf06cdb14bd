package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shenikar/resqlink/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// В ошибках используем имена полей из json-тегов, их видит клиент
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ApplyDefaults заполняет необязательные поля значениями по умолчанию
func (i *Incident) ApplyDefaults() {
	i.Title = strings.TrimSpace(i.Title)
	i.Description = strings.TrimSpace(i.Description)
	if i.Category == "" {
		i.Category = CategoryOther
	}
	if i.Severity == "" {
		i.Severity = SeverityMedium
	}
	if i.Status == "" {
		i.Status = StatusPending
	}
	if strings.TrimSpace(i.Reporter.Name) == "" {
		i.Reporter.Name = DefaultReporterName
	}
	if i.Location.Type == "" {
		i.Location.Type = GeoJSONPointType
	}
}

// Validate проверяет запись перед сохранением. Возвращает *apperr.Error с именем поля.
func (i *Incident) Validate() error {
	if err := validate.Struct(i); err != nil {
		return translate(err)
	}
	if !i.Category.Valid() {
		return apperr.ValidationAllowed("category", fmt.Sprintf("invalid category %q", i.Category), enumStrings(Categories))
	}
	if !i.Severity.Valid() {
		return apperr.ValidationAllowed("severity", fmt.Sprintf("invalid severity %q", i.Severity), enumStrings(Severities))
	}
	if !i.Status.Valid() {
		return apperr.ValidationAllowed("status", fmt.Sprintf("invalid status %q", i.Status), enumStrings(Statuses))
	}
	if i.Location.Type != GeoJSONPointType {
		return apperr.Validation("location", "location must be a GeoJSON Point")
	}
	if !ValidLongitude(i.Location.Lng()) {
		return apperr.Validation("lng", "invalid longitude: must be between -180 and 180")
	}
	if !ValidLatitude(i.Location.Lat()) {
		return apperr.Validation("lat", "invalid latitude: must be between -90 and 90")
	}
	return nil
}

// ParseStatus проверяет целевой статус перехода
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", apperr.ValidationAllowed("status", fmt.Sprintf("invalid status %q", raw), enumStrings(Statuses))
	}
	return s, nil
}

// StatusNames возвращает допустимые статусы для ответов об ошибке
func StatusNames() []string {
	return enumStrings(Statuses)
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Internal("validation failed", err)
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperr.Validation(field, fmt.Sprintf("%s is required", field))
	case "min":
		return apperr.Validation(field, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		return apperr.Validation(field, fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param()))
	default:
		return apperr.Validation(field, fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag()))
	}
}

func enumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
