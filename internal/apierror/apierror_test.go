package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-tracker/internal/errs"
	"go.uber.org/zap"
)

func TestFromError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{errs.ErrTicketNotFound, http.StatusNotFound, CodeNotFound, "ticket not found"},
		{errs.Forbidden("nope"), http.StatusForbidden, CodeForbidden, "nope"},
		{errs.Validation("bad %s", "title"), http.StatusBadRequest, CodeValidationError, "bad title"},
		{errs.Conflict("Cannot delete completed checklist items"), http.StatusConflict, CodeConflict, "Cannot delete completed checklist items"},
		{errs.Upstream(errors.New("model overloaded")), http.StatusBadGateway, CodeUpstreamFailure, "model overloaded"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, CodeInternalError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			FromError(c, zap.NewNop(), tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.code || body.Error.Message != tt.message {
				t.Errorf("body = %+v", body.Error)
			}
		})
	}
}
