package pkg

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mei-chen/beagle-sub000/internal/domain"
)

// Response is the JSON envelope every API endpoint answers with.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationErrorResponse carries per-field binding failures.
type ValidationErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// Success sends data with 200.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: data})
}

// Accepted sends data with 202. Used when the view kept working in the
// background and the caller should poll or wait for the next snapshot.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, Response{Code: http.StatusAccepted, Message: "accepted", Data: data})
}

// Error maps err to a status and a message that is safe to show a user.
func Error(c *gin.Context, err error) {
	status := domain.HTTPStatusCode(err)
	c.JSON(status, Response{Code: status, Message: PublicMessage(err), Data: nil})
}

// PublicMessage returns the AppError message for user-facing codes and a
// generic text otherwise, so upstream details never leak into a page.
func PublicMessage(err error) string {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		return "internal error"
	}
	switch appErr.Code {
	case domain.CodeNotFound, domain.CodeConflict, domain.CodeValidation:
		return appErr.Message
	case domain.CodeTransport:
		return "the contract service is unreachable, please retry"
	default:
		return "internal error"
	}
}

// ValidationError sends a 400 with per-field details when err came from the
// validator.
func ValidationError(c *gin.Context, err error) {
	validationErrorWithType(c, err, nil)
}

// BindAndValidate binds the request into obj and answers 400 on failure.
//
//	if !pkg.BindAndValidate(c, &req) { return }
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		validationErrorWithType(c, err, obj)
		return false
	}
	return true
}

// FieldErrors flattens validator errors to json-name -> rule.
func FieldErrors(err error, obj any) (map[string]string, bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, false
	}
	tags := jsonTagMap(obj)
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		name, ok := tags[fe.StructField()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[name] = rule
	}
	return out, true
}

func validationErrorWithType(c *gin.Context, err error, obj any) {
	fields, ok := FieldErrors(err, obj)
	if !ok {
		c.JSON(http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: err.Error(), Data: nil})
		return
	}
	c.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Code:    http.StatusBadRequest,
		Message: "validation error",
		Errors:  fields,
	})
}

func jsonTagMap(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	m := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		for _, key := range []string{"json", "form"} {
			if name := tagName(f.Tag.Get(key)); name != "" {
				m[f.Name] = name
				break
			}
		}
	}
	return m
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
