package server

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/confdesk/backend/internal/conferences"
	"github.com/confdesk/backend/internal/llm"
	"github.com/confdesk/backend/internal/metrics"
	"github.com/confdesk/backend/internal/protocol"
	"github.com/confdesk/backend/internal/tracker"
	"github.com/confdesk/backend/internal/upstream"
	"github.com/confdesk/backend/internal/users"
)

type stubTranscriber struct {
	filename     string
	audio        string
	language     string
	samplingRate int
	err          error
}

func (s *stubTranscriber) Transcribe(_ context.Context, filename string, audio io.Reader, language string, samplingRate int) (string, error) {
	content, _ := io.ReadAll(audio)
	s.filename = filename
	s.audio = string(content)
	s.language = language
	s.samplingRate = samplingRate
	if s.err != nil {
		return "", s.err
	}
	return "raw words", nil
}

type stubAssistant struct {
	lastText string
	err      error
}

func (s *stubAssistant) ImproveText(_ context.Context, text string) (string, error) {
	s.lastText = text
	return "Improved words.", s.err
}

func (s *stubAssistant) ExtractTopics(_ context.Context, text string) (string, error) {
	s.lastText = text
	return "[budget]", s.err
}

func (s *stubAssistant) Summarize(_ context.Context, text string) (llm.Summary, error) {
	s.lastText = text
	return llm.Summary{Title: "Budget", Description: "Numbers.", Raw: "Title: Budget\nDescription: Numbers."}, s.err
}

type stubTracker struct {
	name   string
	queue  tracker.Queue
	issues []tracker.Issue
	err    error
}

func (s *stubTracker) CreateBoardWithIssues(_ context.Context, name string, queue tracker.Queue, issues []tracker.Issue) (string, []string, error) {
	s.name = name
	s.queue = queue
	s.issues = issues
	if s.err != nil {
		return "", nil, s.err
	}
	return "17", []string{"CONF-1"}, nil
}

func multipartRequest(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile(audioFormField, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, path, &buffer)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func TestRecognizeTranscribesAndImproves(t *testing.T) {
	transcriber := &stubTranscriber{}
	assistant := &stubAssistant{}
	handler := newTestRouter(t, Dependencies{Transcriber: transcriber, Assistant: assistant})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartRequest(t, "/recognize?language=en&sampling_rate=8000", "meeting.wav", "RIFF"))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected success, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["text"] != "Improved words." || body["raw_text"] != "raw words" || body["language"] != "en" {
		t.Fatalf("unexpected response %v", body)
	}
	if transcriber.audio != "RIFF" || transcriber.samplingRate != 8000 || transcriber.filename != "meeting.wav" {
		t.Fatalf("unexpected transcriber input %+v", transcriber)
	}
	if assistant.lastText != "raw words" {
		t.Fatalf("expected transcript to be improved, got %q", assistant.lastText)
	}
}

func TestRecognizeRejectsUnsupportedFormat(t *testing.T) {
	transcriber := &stubTranscriber{}
	handler := newTestRouter(t, Dependencies{Transcriber: transcriber, Assistant: &stubAssistant{}})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartRequest(t, "/recognize", "notes.txt", "hello"))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", recorder.Code)
	}
	if transcriber.filename != "" {
		t.Fatalf("transcriber must not be called for unsupported files")
	}
}

func TestRecognizeMapsUnavailableUpstream(t *testing.T) {
	transcriber := &stubTranscriber{err: upstream.ErrUnavailable}
	handler := newTestRouter(t, Dependencies{Transcriber: transcriber, Assistant: &stubAssistant{}})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, multipartRequest(t, "/recognize", "a.ogg", "x"))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected service unavailable, got %d", recorder.Code)
	}
}

func TestTextEndpoints(t *testing.T) {
	assistant := &stubAssistant{}
	handler := newTestRouter(t, Dependencies{Assistant: assistant})

	request := httptest.NewRequest(http.MethodPost, "/optimize", strings.NewReader("  we talked about budget "))
	request.Header.Set("Content-Type", "text/plain")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK || decodeBody(t, recorder)["text"] != "[budget]" {
		t.Fatalf("unexpected optimize response %d: %s", recorder.Code, recorder.Body.String())
	}
	if assistant.lastText != "we talked about budget" {
		t.Fatalf("expected trimmed text, got %q", assistant.lastText)
	}

	request = httptest.NewRequest(http.MethodPost, "/info", strings.NewReader("text"))
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	body := decodeBody(t, recorder)
	if recorder.Code != http.StatusOK || body["title"] != "Budget" || body["description"] != "Numbers." {
		t.Fatalf("unexpected info response %d: %v", recorder.Code, body)
	}

	request = httptest.NewRequest(http.MethodPost, "/info", strings.NewReader("   "))
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected empty text rejection, got %d", recorder.Code)
	}
}

func TestExternalServicesNotConfigured(t *testing.T) {
	handler := newTestRouter(t, Dependencies{})

	for _, path := range []string{"/optimize", "/info", "/tracker_board/"} {
		recorder := performJSON(t, handler, http.MethodPost, path, map[string]any{})
		if recorder.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected %s to be unavailable, got %d", path, recorder.Code)
		}
	}
}

func TestTrackerBoard(t *testing.T) {
	board := &stubTracker{}
	handler := newTestRouter(t, Dependencies{Tracker: board})

	recorder := performJSON(t, handler, http.MethodPost, "/tracker_board/", map[string]any{
		"conferenceData": map[string]any{
			"name":      "Planning",
			"subthemes": []map[string]any{{"name": "Budget", "description": "Numbers"}, {"name": "Hiring"}},
		},
		"query": map[string]any{"id": "1", "key": "CONF"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected success, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if board.name != "Planning" || board.queue.Key != "CONF" || len(board.issues) != 2 {
		t.Fatalf("unexpected tracker call %+v", board)
	}
	if board.issues[1].Description != "" {
		t.Fatalf("expected absent description to become empty, got %q", board.issues[1].Description)
	}

	board.err = tracker.ErrForbidden
	recorder = performJSON(t, handler, http.MethodPost, "/tracker_board/", map[string]any{
		"conferenceData": map[string]any{"name": "Planning"},
		"query":          map[string]any{"id": "1", "key": "CONF"},
	})
	if recorder.Code != http.StatusForbidden || decodeBody(t, recorder)["status"] != "fail" {
		t.Fatalf("expected forbidden failure, got %d: %s", recorder.Code, recorder.Body.String())
	}

	board.err = errors.New("boom")
	recorder = performJSON(t, handler, http.MethodPost, "/tracker_board/", map[string]any{
		"conferenceData": map[string]any{"name": "Planning"},
		"query":          map[string]any{"id": "1", "key": "CONF"},
	})
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected bad gateway, got %d", recorder.Code)
	}
}

func TestDownloadProtocol(t *testing.T) {
	services := newTestServices(t)
	ctx := context.Background()
	userID, err := services.users.CreateUser(ctx, users.UserInput{
		Name:      "Ivan",
		Surname:   "Ivanov",
		RoleID:    1,
		Telephone: "+100",
		Email:     "ivan@example.com",
		Password:  "secret-pass",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	_, err = services.conferences.Create(ctx, conferences.ConferenceInput{
		Name: "Planning",
		Subthemes: []conferences.SubthemeInput{
			{Name: "Budget", Description: conferences.SomeDescription("Numbers"), UserIDs: []int64{userID}},
		},
	})
	if err != nil {
		t.Fatalf("failed to create conference: %v", err)
	}
	handler := newTestRouter(t, Dependencies{Conferences: services.conferences, Users: services.users})

	missing := performJSON(t, handler, http.MethodPost, "/download_doc", map[string]any{"name": "Unknown"})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", missing.Code)
	}

	recorder := performJSON(t, handler, http.MethodPost, "/download_doc", map[string]any{"name": "Planning"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected document, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Header().Get("Content-Type") != protocol.ContentType {
		t.Fatalf("unexpected content type %q", recorder.Header().Get("Content-Type"))
	}
	if !strings.Contains(recorder.Header().Get("Content-Disposition"), "protocol_1_") {
		t.Fatalf("unexpected disposition %q", recorder.Header().Get("Content-Disposition"))
	}

	archive, err := zip.NewReader(bytes.NewReader(recorder.Body.Bytes()), int64(recorder.Body.Len()))
	if err != nil {
		t.Fatalf("expected a zip package: %v", err)
	}
	var document string
	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}
		handle, err := file.Open()
		if err != nil {
			t.Fatalf("failed to open document part: %v", err)
		}
		content, _ := io.ReadAll(handle)
		_ = handle.Close()
		document = string(content)
	}
	if !strings.Contains(document, "Ivanov I. (Chairperson);") || !strings.Contains(document, "1. Budget - Numbers;") {
		t.Fatalf("unexpected document body %s", document)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	collector := metrics.NewCollector("confdesk_test")
	handler := newTestRouter(t, Dependencies{Metrics: collector, MetricsHandler: collector.Handler()})

	performJSON(t, handler, http.MethodGet, "/roles/", nil)
	recorder := performJSON(t, handler, http.MethodGet, "/metrics", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected metrics, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `route="/roles/"`) {
		t.Fatalf("expected request metric for /roles/, got %s", recorder.Body.String())
	}
}

func TestConferenceEventsStreamHeartbeat(t *testing.T) {
	handler := newTestRouter(t, Dependencies{HeartbeatInterval: 10 * time.Millisecond})
	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/conferences/events", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer response.Body.Close()

	if !strings.HasPrefix(response.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", response.Header.Get("Content-Type"))
	}
	scanner := bufio.NewScanner(response.Body)
	for scanner.Scan() {
		if scanner.Text() == "event:"+realtimeEventHeartbeat {
			return
		}
	}
	t.Fatalf("stream ended without heartbeat: %v", scanner.Err())
}
