package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/pipeline"
	"super-feynman-go/internal/repository"
	"super-feynman-go/internal/service"
	"super-feynman-go/internal/testutil"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/lock"
)

type apiFixture struct {
	db      *gorm.DB
	llm     *testutil.FakeLLM
	speech  *testutil.FakeSpeech
	engine  *gin.Engine
	tempDir string
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	llm := &testutil.FakeLLM{
		Concepts: []model.ExtractedConcept{{Name: "Entropy", Description: "A measure of disorder."}},
		Opener:   "Can you explain entropy?",
		Replies:  []string{"Like a messy room?"},
		Feedback: &model.FeedbackResult{OverallQuality: "Good.", ClearParts: []string{}, UnclearParts: []string{}, JargonUsed: []string{}, StruggledWith: []string{}},
	}
	speech := &testutil.FakeSpeech{Text: "entropy is disorder"}

	courseRepo := repository.NewCourseRepository(db)
	lectureRepo := repository.NewLectureRepository(db)
	conceptRepo := repository.NewConceptRepository(db)
	sessionRepo := repository.NewReviewSessionRepository(db)
	extractor := pipeline.NewConceptExtractor(llm, conceptRepo, nil, nil)

	courseSvc := service.NewCourseService(courseRepo, lectureRepo, nil, nil)
	lectureSvc := service.NewLectureService(courseRepo, lectureRepo, conceptRepo, extractor, 1024, service.LectureDeps{})
	conceptSvc := service.NewConceptService(conceptRepo, nil, nil)
	reviewSvc := service.NewReviewService(llm, conceptRepo, sessionRepo, lock.NewMemoryLocker(), service.WithMaxTurns(5))
	transcribeSvc := service.NewTranscribeService(speech, 1024)

	tempDir := t.TempDir()
	r := gin.New()
	RegisterRoutes(r, Handlers{
		Course:     NewCourseHandler(courseSvc, lectureSvc),
		Lecture:    NewLectureHandler(lectureSvc, conceptSvc, 1024),
		Concept:    NewConceptHandler(conceptSvc),
		Review:     NewReviewHandler(reviewSvc),
		ReviewWS:   NewReviewSocketHandler(reviewSvc),
		Transcribe: NewTranscribeHandler(transcribeSvc, tempDir, 1024),
		Health:     NewHealthHandler(db, nil),
	}, nil, nil)
	return &apiFixture{db: db, llm: llm, speech: speech, engine: r, tempDir: tempDir}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (body %s)", req.Method, req.URL.Path, err, w.Body.String())
	}
	if env.Code != w.Code {
		t.Fatalf("envelope code %d != status %d", env.Code, w.Code)
	}
	return w.Code, env
}

func (f *apiFixture) json(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(t, req)
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write(content)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, raw)
	}
	return v
}

func TestReviewFlowOverHTTP(t *testing.T) {
	f := newAPI(t)

	code, env := f.json(t, http.MethodPost, "/api/v1/courses", `{"name":"Thermo"}`)
	if code != http.StatusCreated {
		t.Fatalf("create course: %d %+v", code, env)
	}
	course := decode[model.Course](t, env.Data)

	code, env = f.do(t, multipartRequest(t, "/api/v1/lectures",
		map[string]string{"courseId": jsonID(course.ID), "name": "Lecture 3"},
		"file", "notes.txt", []byte("Entropy is a measure of disorder.")))
	if code != http.StatusCreated {
		t.Fatalf("create lecture: %d %+v", code, env)
	}
	lecture := decode[service.LectureResult](t, env.Data)
	if len(lecture.Concepts) != 1 || lecture.ConceptsGenerationError != "" {
		t.Fatalf("lecture result = %+v", lecture)
	}
	conceptID := lecture.Concepts[0].ID

	code, env = f.json(t, http.MethodPost, "/api/v1/review-sessions",
		`{"concept_id": `+jsonID(conceptID)+`, "audience_level": "classmate"}`)
	if code != http.StatusCreated {
		t.Fatalf("start: %d %+v", code, env)
	}
	started := decode[struct {
		SessionID      uint   `json:"session_id"`
		InitialMessage string `json:"initial_message"`
	}](t, env.Data)
	if started.InitialMessage != "Can you explain entropy?" {
		t.Fatalf("started = %+v", started)
	}
	base := "/api/v1/review-sessions/" + jsonID(started.SessionID)

	code, env = f.json(t, http.MethodPost, base+"/message", `{"user_message":"It's disorder."}`)
	if code != http.StatusOK || !strings.Contains(string(env.Data), "Like a messy room?") {
		t.Fatalf("message: %d %s", code, env.Data)
	}

	code, env = f.json(t, http.MethodPost, base+"/end", ``)
	if code != http.StatusOK {
		t.Fatalf("end: %d %+v", code, env)
	}
	end := decode[service.EndResult](t, env.Data)
	if end.OldStatus != model.StatusNotStarted || end.NewStatus != model.StatusReviewing || end.Feedback.OverallQuality != "Good." {
		t.Fatalf("end = %+v", end)
	}

	code, env = f.json(t, http.MethodPost, base+"/end", ``)
	if code != http.StatusConflict || env.Error != "invalid_state" {
		t.Fatalf("second end: %d %+v", code, env)
	}

	code, env = f.json(t, http.MethodGet, "/api/v1/lectures/"+jsonID(lecture.Lecture.ID)+"/concepts", ``)
	concepts := decode[[]map[string]interface{}](t, env.Data)
	if code != http.StatusOK || len(concepts) != 1 || concepts[0]["progress_status"] != "Reviewing" || concepts[0]["last_reviewed"] == nil {
		t.Fatalf("concepts: %d %s", code, env.Data)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newAPI(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	cid := jsonID(concept.ID)

	cases := []struct {
		name       string
		method     string
		path       string
		body       string
		setup      func()
		wantStatus int
		wantKind   string
	}{
		{"bad id", http.MethodDelete, "/api/v1/courses/abc", "", nil, 400, "invalid_input"},
		{"zero id", http.MethodGet, "/api/v1/review-sessions/0", "", nil, 400, "invalid_input"},
		{"missing course", http.MethodDelete, "/api/v1/courses/999", "", nil, 404, "not_found"},
		{"empty course name", http.MethodPost, "/api/v1/courses", `{"name":"  "}`, nil, 400, "invalid_input"},
		{"bad audience", http.MethodPost, "/api/v1/review-sessions", `{"concept_id":` + cid + `,"audience_level":"professor"}`, nil, 400, "invalid_input"},
		{"missing concept", http.MethodPost, "/api/v1/review-sessions", `{"concept_id":999,"audience_level":"kid"}`, nil, 404, "not_found"},
		{"missing session", http.MethodPost, "/api/v1/review-sessions/999/message", `{"user_message":"hi"}`, nil, 404, "not_found"},
		{"bad progress", http.MethodPatch, "/api/v1/concepts/" + cid + "/progress", `{"progress_status":"Expert"}`, nil, 400, "invalid_input"},
		{"empty search", http.MethodGet, "/api/v1/concepts/search?q=", "", nil, 400, "invalid_input"},
		{"rate limited", http.MethodPost, "/api/v1/review-sessions", `{"concept_id":` + cid + `,"audience_level":"kid"}`,
			func() { f.llm.OpenErr = apperr.ErrRateLimited }, 503, "rate_limited"},
		{"bad credentials", http.MethodPost, "/api/v1/review-sessions", `{"concept_id":` + cid + `,"audience_level":"kid"}`,
			func() { f.llm.OpenErr = apperr.ErrInvalidCredentials }, 503, "invalid_credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup()
			}
			code, env := f.json(t, tc.method, tc.path, tc.body)
			if code != tc.wantStatus || env.Error != tc.wantKind {
				t.Fatalf("status = %d kind = %q, want %d %q (%s)", code, env.Error, tc.wantStatus, tc.wantKind, env.Message)
			}
		})
	}
}

func TestProviderDetailsDoNotLeak(t *testing.T) {
	f := newAPI(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	f.llm.OpenErr = &leakyError{}

	_, env := f.json(t, http.MethodPost, "/api/v1/review-sessions", `{"concept_id":`+jsonID(concept.ID)+`,"audience_level":"kid"}`)
	if strings.Contains(env.Message, "sk-secret") {
		t.Fatalf("provider detail leaked: %q", env.Message)
	}
}

type leakyError struct{}

func (*leakyError) Error() string { return "provider said: invalid key sk-secret" }
func (*leakyError) Unwrap() error { return apperr.ErrProviderCallFailed }

func TestLectureUploadRejections(t *testing.T) {
	f := newAPI(t)
	course := testutil.SeedCourse(t, f.db, "Thermo")
	cid := jsonID(course.ID)

	cases := []struct {
		name     string
		fields   map[string]string
		file     string
		content  []byte
		wantCode int
	}{
		{"missing course id", map[string]string{"name": "L"}, "notes.txt", []byte("x"), 400},
		{"unknown course", map[string]string{"courseId": "999", "name": "L"}, "notes.txt", []byte("x"), 404},
		{"no file", map[string]string{"courseId": cid, "name": "L"}, "", nil, 400},
		{"wrong type", map[string]string{"courseId": cid, "name": "L"}, "notes.exe", []byte("x"), 400},
		{"too large", map[string]string{"courseId": cid, "name": "L"}, "notes.txt", bytes.Repeat([]byte("a"), 2048), 400},
		{"binary", map[string]string{"courseId": cid, "name": "L"}, "notes.txt", []byte{0x00, 0x01}, 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			field := "file"
			if tc.file == "" {
				field = ""
			}
			code, env := f.do(t, multipartRequest(t, "/api/v1/lectures", tc.fields, field, tc.file, tc.content))
			if code != tc.wantCode {
				t.Fatalf("status = %d, want %d (%s)", code, tc.wantCode, env.Message)
			}
		})
	}
}

func TestLectureUploadKeepsLectureWhenExtractionFails(t *testing.T) {
	f := newAPI(t)
	course := testutil.SeedCourse(t, f.db, "Thermo")
	f.llm.ExtractErr = apperr.ErrMalformedProviderResponse

	code, env := f.do(t, multipartRequest(t, "/api/v1/lectures",
		map[string]string{"courseId": jsonID(course.ID), "name": "Lecture 1"}, "file", "notes.md", []byte("# Heat")))
	if code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", code, env.Message)
	}
	res := decode[service.LectureResult](t, env.Data)
	if res.ConceptsGenerationError == "" || res.Lecture == nil {
		t.Fatalf("result = %+v", res)
	}

	f.llm.ExtractErr = nil
	code, env = f.json(t, http.MethodPost, "/api/v1/lectures/"+jsonID(res.Lecture.ID)+"/concepts/regenerate", ``)
	if code != http.StatusOK {
		t.Fatalf("regenerate: %d %+v", code, env)
	}
	code, _ = f.json(t, http.MethodPost, "/api/v1/lectures/"+jsonID(res.Lecture.ID)+"/concepts/regenerate", ``)
	if code != http.StatusConflict {
		t.Fatalf("second regenerate status = %d, want 409", code)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	f := newAPI(t)

	code, env := f.do(t, multipartRequest(t, "/api/v1/transcribe", nil, "audio", "recording.webm", []byte("webm-bytes")))
	if code != http.StatusOK || !strings.Contains(string(env.Data), "entropy is disorder") {
		t.Fatalf("status = %d data = %s", code, env.Data)
	}
	if string(f.speech.Audio) != "webm-bytes" {
		t.Fatalf("audio = %q", f.speech.Audio)
	}

	code, _ = f.do(t, multipartRequest(t, "/api/v1/transcribe", nil, "audio", "recording.txt", []byte("x")))
	if code != http.StatusBadRequest {
		t.Fatalf("wrong type status = %d", code)
	}
	code, _ = f.do(t, multipartRequest(t, "/api/v1/transcribe", nil, "", "", nil))
	if code != http.StatusBadRequest {
		t.Fatalf("missing audio status = %d", code)
	}

	f.speech.Err = apperr.ErrRateLimited
	code, env = f.do(t, multipartRequest(t, "/api/v1/transcribe", nil, "audio", "recording.webm", []byte("webm-bytes")))
	if code != http.StatusServiceUnavailable || env.Error != "rate_limited" {
		t.Fatalf("status = %d kind = %s", code, env.Error)
	}

	f.speech.Err = apperr.ErrInvalidCredentials
	code, env = f.do(t, multipartRequest(t, "/api/v1/transcribe", nil, "audio", "recording.webm", []byte("webm-bytes")))
	if code != http.StatusServiceUnavailable || env.Error != "invalid_credentials" {
		t.Fatalf("bad key status = %d kind = %s", code, env.Error)
	}

	left, _ := os.ReadDir(f.tempDir)
	if len(left) != 0 {
		t.Fatalf("temp files left behind: %v", left)
	}
}

func TestHealth(t *testing.T) {
	f := newAPI(t)
	code, env := f.json(t, http.MethodGet, "/health", ``)
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"database":"ok"`) {
		t.Fatalf("health: %d %s", code, env.Data)
	}
}

func TestReviewOverWebsocket(t *testing.T) {
	f := newAPI(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusReviewing)
	_, env := f.json(t, http.MethodPost, "/api/v1/review-sessions", `{"concept_id":`+jsonID(concept.ID)+`,"audience_level":"kid"}`)
	started := decode[struct {
		SessionID uint `json:"session_id"`
	}](t, env.Data)

	srv := httptest.NewServer(f.engine)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/review-sessions/" + jsonID(started.SessionID) + "/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(strings.Replace(wsURL, jsonID(started.SessionID), "999", 1), nil); err == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("dial missing session: err = %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame map[string]interface{}
	_ = conn.WriteJSON(map[string]string{"type": "message", "content": "  "})
	if err := conn.ReadJSON(&frame); err != nil || frame["type"] != "error" || frame["error"] != "invalid_input" {
		t.Fatalf("blank frame reply = %v, err = %v", frame, err)
	}

	_ = conn.WriteJSON(map[string]string{"type": "message", "content": "Entropy is disorder."})
	frame = nil
	if err := conn.ReadJSON(&frame); err != nil || frame["type"] != "reply" || frame["content"] != "Like a messy room?" {
		t.Fatalf("reply frame = %v, err = %v", frame, err)
	}

	_ = conn.WriteJSON(map[string]string{"type": "end"})
	frame = nil
	if err := conn.ReadJSON(&frame); err != nil || frame["type"] != "feedback" {
		t.Fatalf("feedback frame = %v, err = %v", frame, err)
	}
	data, _ := frame["data"].(map[string]interface{})
	if data["new_status"] != "Understood" {
		t.Fatalf("feedback data = %v", data)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func jsonID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
