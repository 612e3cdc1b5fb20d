package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/mis-api/pkg/errors"
)

// ErrorLogger logs the errors handlers attached with c.Error. Responses
// are already written by then.
func ErrorLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			if appErr, ok := apperrors.As(e.Err); ok && appErr.StatusCode() < 500 {
				continue
			}
			log.Ctx(c.Request.Context()).Error().
				Err(e.Err).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}
	}
}
