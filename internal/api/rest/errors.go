package rest

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/KevinKickass/OpenShmInspector/internal/client"
	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/setter"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/KevinKickass/OpenShmInspector/internal/tools"
	"github.com/KevinKickass/OpenShmInspector/internal/types"
	"github.com/gin-gonic/gin"
)

// errorStatus maps domain errors onto HTTP status and API error code.
func errorStatus(err error) (int, string) {
	var exitErr *tools.ExitError

	switch {
	case errors.Is(err, registry.ErrUnknownIdentifier), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, types.CodeNotFound
	case errors.Is(err, shm.ErrInvalidValue), errors.Is(err, shm.ErrNotWritable):
		return http.StatusBadRequest, types.CodeInvalidValue
	case errors.Is(err, shm.ErrOutOfRange),
		errors.Is(err, shm.ErrInvalidBit),
		errors.Is(err, shm.ErrUnsupportedBank),
		errors.Is(err, shm.ErrInvalidValueSpec),
		errors.Is(err, shm.ErrInvalidDirective):
		return http.StatusBadRequest, types.CodeInvalidEntry
	case errors.Is(err, setter.ErrHashMismatch), errors.Is(err, setter.ErrMalformedRecord):
		return http.StatusUnprocessableEntity, types.CodeConfigInvalid
	case errors.Is(err, setter.ErrNothingToApply),
		errors.Is(err, client.ErrUnknownMode),
		errors.Is(err, client.ErrNoDevice),
		errors.Is(err, client.ErrInvalidCount):
		return http.StatusBadRequest, types.CodeBadRequest
	case errors.Is(err, tools.ErrRandomizerRunning), errors.Is(err, tools.ErrRandomizerNotRunning):
		return http.StatusConflict, types.CodeConflict
	case errors.Is(err, tools.ErrInvalidInterval):
		return http.StatusBadRequest, types.CodeBadRequest
	case errors.Is(err, errUnsafePath):
		return http.StatusBadRequest, types.CodeBadRequest
	case errors.Is(err, client.ErrUnreachable):
		return http.StatusBadGateway, types.CodeUnavailable
	case errors.Is(err, client.ErrException):
		return http.StatusBadGateway, types.CodeToolFailed
	case errors.Is(err, tools.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, types.CodeToolTimeout
	case errors.As(err, &exitErr):
		return http.StatusBadGateway, types.CodeToolFailed
	case errors.Is(err, shm.ErrUnknownFormatCharacter),
		errors.Is(err, shm.ErrUnknownDataType),
		errors.Is(err, shm.ErrTypeMismatch),
		errors.Is(err, shm.ErrLengthMismatch):
		return http.StatusBadGateway, types.CodeDecodeFailed
	default:
		return http.StatusInternalServerError, types.CodeInternal
	}
}

func (s *Server) respondError(c *gin.Context, message string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}

	var details any = err.Error()
	var exitErr *tools.ExitError
	if errors.As(err, &exitErr) && exitErr.Stderr != "" {
		details = gin.H{"error": err.Error(), "stderr": exitErr.Stderr}
	}
	c.JSON(status, types.NewErrorResponse(code, message, details))
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, message, err.Error()))
}
