// Package respond writes the result envelope returned by every API route.
package respond

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/parley/pkg/parley/apperr"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the envelope for every API response
type Result struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OK writes a success result
func OK(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Result{Status: StatusSuccess, Message: message, Data: data})
}

// Fail writes an error result with an explicit status code
func Fail(c *gin.Context, code int, message string) {
	c.JSON(code, Result{Status: StatusError, Message: message})
}

// Error maps err onto an error result. Uncategorised errors are logged and
// reported as an opaque internal error.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	code := StatusCode(kind)
	if code >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, Result{Status: StatusError, Message: apperr.MessageOf(err)})
}

// StatusCode returns the HTTP status for an error kind
func StatusCode(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindSelfReference:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindDuplicate:
		return http.StatusConflict
	case apperr.KindUpload, apperr.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ParamID parses a numeric path parameter. On failure it writes a 400 result
// naming the parameter and returns false.
func ParamID(c *gin.Context, param, label string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		Fail(c, http.StatusBadRequest, "Invalid "+label+" ID")
		return 0, false
	}
	return uint(id), true
}
