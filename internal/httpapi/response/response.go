// Package response writes the gateway's JSON envelopes, adapted from the
// teacher's internal/http/response but flattened to spec.md §7's external
// contract: {"error": "<tag>", "request_id": "<id>"} rather than the
// teacher's nested {"error": {"message":..., "code":...}}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devenwen/callme-gate/internal/apierr"
)

type errorEnvelope struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Error writes the dispatch error taxonomy tag and status spec.md §7
// prescribes. Internal detail (apiErr.Err) is never echoed; callers log it
// separately.
func Error(c *gin.Context, apiErr *apierr.Error) {
	c.JSON(apierr.Status(apiErr.Tag), errorEnvelope{
		Error:     string(apiErr.Tag),
		RequestID: c.GetString("request_id"),
	})
}

// OK writes a 200 JSON payload for introspection endpoints.
func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
