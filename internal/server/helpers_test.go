package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/database"
	"github.com/confdesk/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type testServices struct {
	conferences *conferences.Service
	users       *users.Service
}

func newTestServices(t *testing.T) testServices {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	conferenceService, err := conferences.NewService(conferences.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to create conference service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	return testServices{conferences: conferenceService, users: userService}
}

func newTestRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Conferences == nil || deps.Users == nil {
		services := newTestServices(t)
		if deps.Conferences == nil {
			deps.Conferences = services.conferences
		}
		if deps.Users == nil {
			deps.Users = services.users
		}
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func performJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func performJSONWithHeader(t *testing.T, handler http.Handler, method, path, header, value string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, http.NoBody)
	request.Header.Set(header, value)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}
