package httputil

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/mis-api/pkg/errors"
)

// ErrorBody is the body of every non-field error
type ErrorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

var fieldMessages = map[string]string{
	"required": "This field is required.",
	"email":    "Enter a valid email address.",
	"username": "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.",
}

// RespondWithError writes err using the status of its error code
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	status := appErr.StatusCode()
	_ = c.Error(err)

	switch {
	case len(appErr.Fields) > 0:
		c.JSON(status, appErr.Fields)
	case appErr.Code == errors.ErrIntegrity:
		body := ErrorBody{Detail: appErr.Message}
		if appErr.Err != nil {
			body.Error = appErr.Err.Error()
		}
		c.JSON(status, body)
	case appErr.Code == errors.ErrInternal && appErr.Message == "internal server error":
		c.JSON(status, ErrorBody{Detail: "A server error occurred."})
	default:
		c.JSON(status, ErrorBody{Detail: appErr.Message})
	}
}

// RespondWithDetail writes a plain {"detail": ...} body
func RespondWithDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, ErrorBody{Detail: detail})
}

// BindError converts a gin binding failure into a validation error
func BindError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make(map[string][]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
		}
		return errors.Validation(fields)
	}

	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) && typeErr.Field != "" {
		return errors.FieldError(typeErr.Field, fmt.Sprintf("Incorrect type. Expected %s.", typeErr.Type.String()))
	}

	if stderrors.Is(err, io.EOF) {
		return errors.BadRequest("Request body is empty.", err)
	}

	return errors.BadRequest(fmt.Sprintf("JSON parse error - %s", err.Error()), err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "role", "consultation_status":
		return fmt.Sprintf("\"%v\" is not a valid choice.", fe.Value())
	}
	if msg, ok := fieldMessages[fe.Tag()]; ok {
		return msg
	}
	return strings.TrimSpace(fe.Error())
}
