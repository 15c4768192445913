package api

import (
	"errors"
	"net/http"

	"docintake/common"

	"github.com/gin-gonic/gin"
)

// errorResponse is the envelope for every non-2xx reply.
type errorResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Fields  []common.FieldError `json:"fields,omitempty"`
}

// respondError maps err onto a status code and writes the error envelope.
// Unexpected errors are logged with request context and hidden from clients.
func respondError(c *gin.Context, log *common.Logger, err error) {
	if ve, ok := common.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, errorResponse{Status: "error", Message: "Invalid request", Fields: ve.Fields})
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, common.ErrUnavailable):
		status, message = http.StatusServiceUnavailable, "Queue backend unavailable"
	}

	if status >= 500 && log != nil {
		log.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString("request_id"),
			"error", err,
		)
	}
	c.JSON(status, errorResponse{Status: "error", Message: message})
}

func badRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Status:  "error",
		Message: "Invalid request",
		Fields:  []common.FieldError{{Field: field, Message: message}},
	})
}
