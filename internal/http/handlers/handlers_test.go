package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/http/middleware"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/repo"
	"github.com/tbourn/go-interview-backend/internal/services"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// roomStore adapts the repo functions to services.RoomRepo.
type roomStore struct{}

func (roomStore) CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	return repo.CreateRoom(ctx, db, r)
}
func (roomStore) ListRoomsByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Room, error) {
	return repo.ListRoomsByOwner(ctx, db, ownerID)
}
func (roomStore) GetRoomByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Room, error) {
	return repo.GetRoomByCode(ctx, db, code)
}
func (roomStore) AddRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	return repo.AddRoomMember(ctx, db, roomID, userID)
}
func (roomStore) SetRoomActive(ctx context.Context, db *gorm.DB, roomID string, active bool) error {
	return repo.SetRoomActive(ctx, db, roomID, active)
}

// stubSessions records calls and returns canned results.
type stubSessions struct {
	resume  func(ident domain.Identity, code string, in services.ResumeInput) (*domain.Candidate, interview.Intake, error)
	contact func(ident domain.Identity, id string, form interview.ContactForm) (*domain.Candidate, interview.Intake, error)
	view    services.View
	viewErr error
	submit  func(id, text string) (interview.Outcome, error)
	drafts  []string
	submits int
}

func (s *stubSessions) SubmitResume(_ context.Context, ident domain.Identity, code string, in services.ResumeInput) (*domain.Candidate, interview.Intake, error) {
	return s.resume(ident, code, in)
}
func (s *stubSessions) SubmitMissingFields(_ context.Context, ident domain.Identity, id string, form interview.ContactForm) (*domain.Candidate, interview.Intake, error) {
	return s.contact(ident, id, form)
}
func (s *stubSessions) Open(context.Context, domain.Identity, string) (services.View, error) {
	return s.view, s.viewErr
}
func (s *stubSessions) Snapshot(context.Context, domain.Identity, string) (services.View, error) {
	return s.view, s.viewErr
}
func (s *stubSessions) UpdateDraft(_ context.Context, _ domain.Identity, _ string, text string) (services.View, error) {
	s.drafts = append(s.drafts, text)
	v := s.view
	v.Draft = text
	return v, s.viewErr
}
func (s *stubSessions) Submit(_ context.Context, _ domain.Identity, id, text string) (interview.Outcome, error) {
	s.submits++
	return s.submit(id, text)
}

type testServer struct {
	r        *gin.Engine
	db       *gorm.DB
	rooms    *services.RoomService
	cands    *services.CandidateService
	sessions *stubSessions
	h        *Handlers
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	rooms := services.NewRoomService(db, roomStore{})
	ts := &testServer{
		db:       db,
		rooms:    rooms,
		cands:    services.NewCandidateService(db, rooms),
		sessions: &stubSessions{},
	}
	ts.h = New(ts.rooms, ts.cands, ts.sessions)

	r := gin.New()
	r.Use(middleware.Authenticate(middleware.AuthOptions{}))
	r.POST("/rooms", ts.h.CreateRoom)
	r.GET("/rooms", ts.h.ListRooms)
	r.GET("/rooms/:code", ts.h.GetRoom)
	r.POST("/rooms/:code/join", ts.h.JoinRoom)
	r.POST("/rooms/:code/deactivate", ts.h.DeactivateRoom)
	r.GET("/rooms/:code/candidates", ts.h.ListRoomCandidates)
	r.POST("/rooms/:code/resume", ts.h.PostResume)
	r.GET("/candidates/:id", ts.h.GetCandidate)
	r.PATCH("/candidates/:id", ts.h.PatchCandidate)
	r.DELETE("/candidates/:id", ts.h.DeleteCandidate)
	r.POST("/candidates/:id/chat", ts.h.PostChatMessage)
	r.POST("/candidates/:id/answers", ts.h.PostAnswer)
	r.POST("/candidates/:id/contact", ts.h.PostContact)
	r.POST("/candidates/:id/session", ts.h.OpenSession)
	r.GET("/candidates/:id/session", ts.h.GetSession)
	r.PUT("/candidates/:id/session/draft", ts.h.PutDraft)
	r.POST("/candidates/:id/session/submit", ts.h.SubmitAnswer)
	ts.r = r
	return ts
}

type call struct {
	method, path string
	user, role   string
	body         any
	headers      map[string]string
}

func (ts *testServer) do(t *testing.T, cl call) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(cl.method, cl.path, rd)
	req.Header.Set("Content-Type", "application/json")
	if cl.user != "" {
		req.Header.Set(middleware.HeaderUserID, cl.user)
	}
	if cl.role != "" {
		req.Header.Set(middleware.HeaderUserRole, cl.role)
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (ts *testServer) seedRoom(t *testing.T, owner string) *domain.Room {
	t.Helper()
	room, err := ts.rooms.Create(context.Background(), owner, "Ivy", "Backend engineer")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func (ts *testServer) seedCandidate(t *testing.T, code, user string) *domain.Candidate {
	t.Helper()
	c, err := ts.cands.Create(context.Background(),
		domain.Identity{UserID: user, Role: domain.RoleInterviewee},
		services.NewCandidate{RoomCode: code, Name: "Ada " + user, Email: user + "@example.com", Phone: "555-123-4567", ResumeText: "Go developer"},
	)
	if err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	return c
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	if e := decode[ErrorResponse](t, w); e.Code != code {
		t.Fatalf("code = %q, want %q", e.Code, code)
	}
}

// ---------- helpers ----------

func TestHelpers_SanitizeClampIdemKey(t *testing.T) {
	if got := sanitizeContent("  line1\r\n\r\n\r\n\r\nline2\rline3  "); got != "line1\n\nline2\nline3" {
		t.Fatalf("sanitizeContent = %q", got)
	}
	if sanitizeContent(" \r\n\t ") != "" {
		t.Fatalf("sanitizeContent should trim to empty")
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=-3&page_size=9999", nil)
	if p, ps := clampPagination(c); p != 1 || ps != 100 {
		t.Fatalf("clamp = %d,%d; want 1,100", p, ps)
	}
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=&page_size=0", nil)
	if p, ps := clampPagination(c); p != 1 || ps != 1 {
		t.Fatalf("clamp defaults = %d,%d", p, ps)
	}

	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("Idempotency-Key", " k-1 ")
	if k := idempotencyKey(c); k != "k-1" {
		t.Fatalf("idem key = %q", k)
	}

	if p := newPagination(2, 10, 21); p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
}

func TestFailErr_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
		{services.ErrAttemptCompleted, http.StatusConflict, "attempt_completed"},
		{services.ErrSessionLocked, http.StatusConflict, "session_locked"},
		{domain.Persistence(errors.New("disk full")), http.StatusServiceUnavailable, ErrCodeSubmissionFailed},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ErrCodeTimeout},
		{errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		failErr(c, tc.err)
		wantError(t, w, tc.status, tc.code)
	}
}

// ---------- rooms ----------

func TestRooms_CreateListGetDeactivate(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, call{method: http.MethodPost, path: "/rooms", body: CreateRoomRequest{Title: "Go"}})
	wantError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	w = ts.do(t, call{method: http.MethodPost, path: "/rooms", user: "cand-1", role: domain.RoleInterviewee, body: CreateRoomRequest{Title: "Go"}})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)

	w = ts.do(t, call{method: http.MethodPost, path: "/rooms", user: "int-1", role: domain.RoleInterviewer, body: map[string]string{}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = ts.do(t, call{method: http.MethodPost, path: "/rooms", user: "int-1", role: domain.RoleInterviewer,
		body: CreateRoomRequest{Title: "  Senior   Go  ", InterviewerName: "grace hopper"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	room := decode[domain.Room](t, w)
	if !strings.HasPrefix(room.Code, "INT-") || room.Title != "Senior Go" || room.OwnerName != "Grace Hopper" || !room.IsActive {
		t.Fatalf("unexpected room %+v", room)
	}

	w = ts.do(t, call{method: http.MethodGet, path: "/rooms", user: "int-1"})
	if list := decode[ListRoomsResponse](t, w); len(list.Rooms) != 1 || list.Rooms[0].Code != room.Code {
		t.Fatalf("list = %+v", list)
	}

	w = ts.do(t, call{method: http.MethodGet, path: "/rooms/" + strings.ToLower(room.Code)})
	if w.Code != http.StatusOK || decode[domain.Room](t, w).ID != room.ID {
		t.Fatalf("get by lowercase code: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, call{method: http.MethodGet, path: "/rooms/INT-NOPE00"})
	wantError(t, w, http.StatusNotFound, "room_not_found")

	w = ts.do(t, call{method: http.MethodPost, path: "/rooms/" + room.Code + "/deactivate", user: "int-2"})
	wantError(t, w, http.StatusForbidden, "forbidden")

	w = ts.do(t, call{method: http.MethodPost, path: "/rooms/" + room.Code + "/deactivate", user: "int-1"})
	if w.Code != http.StatusOK || decode[domain.Room](t, w).IsActive {
		t.Fatalf("deactivate: %d %s", w.Code, w.Body.String())
	}
}

func TestRooms_Join(t *testing.T) {
	ts := newTestServer(t)
	room := ts.seedRoom(t, "int-1")

	w := ts.do(t, call{method: http.MethodPost, path: "/rooms/" + room.Code + "/join", user: "cand-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("join: %d %s", w.Code, w.Body.String())
	}
	res := decode[JoinRoomResponse](t, w)
	if res.Stage != interview.StageUpload || res.Candidate != nil || len(res.Room.CandidateIDs) != 1 {
		t.Fatalf("unexpected join %+v", res)
	}

	cand := ts.seedCandidate(t, room.Code, "cand-2")
	w = ts.do(t, call{method: http.MethodPost, path: "/rooms/" + room.Code + "/join", user: "cand-2"})
	res = decode[JoinRoomResponse](t, w)
	if res.Candidate == nil || res.Candidate.ID != cand.ID || res.Stage != interview.StageInterview {
		t.Fatalf("resume join %+v", res)
	}

	w = ts.do(t, call{method: http.MethodPost, path: "/rooms/" + room.Code + "/join", user: "int-9", role: domain.RoleInterviewer})
	if w.Code != http.StatusOK || decode[JoinRoomResponse](t, w).Stage != "" {
		t.Fatalf("interviewer join: %d %s", w.Code, w.Body.String())
	}
	got, err := ts.rooms.GetByCode(context.Background(), room.Code)
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	for _, id := range got.CandidateIDs {
		if id == "int-9" {
			t.Fatalf("interviewer recorded as a candidate: %v", got.CandidateIDs)
		}
	}

	if _, err := ts.rooms.Deactivate(context.Background(), "int-1", room.Code); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	w = ts.do(t, call{method: http.MethodPost, path: "/rooms/" + room.Code + "/join", user: "cand-3"})
	wantError(t, w, http.StatusConflict, "room_closed")
}

// ---------- candidates ----------

func TestCandidates_ListETagAndOwnership(t *testing.T) {
	ts := newTestServer(t)
	room := ts.seedRoom(t, "int-1")
	ts.seedCandidate(t, room.Code, "cand-1")
	ts.seedCandidate(t, room.Code, "cand-2")
	path := "/rooms/" + room.Code + "/candidates?page=1&page_size=1"

	w := ts.do(t, call{method: http.MethodGet, path: path, user: "int-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	list := decode[ListCandidatesResponse](t, w)
	if len(list.Candidates) != 1 || list.Pagination.Total != 2 || !list.Pagination.HasNext {
		t.Fatalf("list = %+v", list)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"candidates:`+room.Code) {
		t.Fatalf("etag = %q", etag)
	}

	w = ts.do(t, call{method: http.MethodGet, path: path, user: "int-1", headers: map[string]string{"If-None-Match": etag}})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional get = %d", w.Code)
	}

	w = ts.do(t, call{method: http.MethodGet, path: path, user: "cand-1"})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)
}

func TestCandidates_GetPatchDelete(t *testing.T) {
	ts := newTestServer(t)
	room := ts.seedRoom(t, "int-1")
	cand := ts.seedCandidate(t, room.Code, "cand-1")
	path := "/candidates/" + cand.ID

	w := ts.do(t, call{method: http.MethodGet, path: path, user: "cand-1"})
	if w.Code != http.StatusOK || decode[domain.Candidate](t, w).ID != cand.ID || w.Header().Get("ETag") == "" {
		t.Fatalf("get own: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, call{method: http.MethodGet, path: path, user: "int-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("get as owner: %d", w.Code)
	}
	w = ts.do(t, call{method: http.MethodGet, path: path, user: "stranger"})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)
	w = ts.do(t, call{method: http.MethodGet, path: "/candidates/" + uuid.NewString(), user: "cand-1"})
	wantError(t, w, http.StatusNotFound, "candidate_not_found")

	// The interviewee cannot complete or score their own attempt.
	w = ts.do(t, call{method: http.MethodPatch, path: path, user: "cand-1", body: map[string]any{"status": "completed", "final_score": 10}})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)
	if got, _ := ts.cands.Get(context.Background(), cand.ID); got.Status != domain.StatusPending {
		t.Fatalf("candidate patch was applied: %s", got.Status)
	}

	w = ts.do(t, call{method: http.MethodPatch, path: path, user: "int-1", body: map[string]string{"status": "in-progress"}})
	if w.Code != http.StatusOK || decode[domain.Candidate](t, w).Status != domain.StatusInProgress {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, call{method: http.MethodPatch, path: path, user: "int-1", body: map[string]string{"status": "pending"}})
	wantError(t, w, http.StatusConflict, "conflict")
	w = ts.do(t, call{method: http.MethodPatch, path: path, user: "int-1", body: map[string]string{"status": "archived"}})
	wantError(t, w, http.StatusBadRequest, ErrCodeValidation)

	w = ts.do(t, call{method: http.MethodDelete, path: path, user: "cand-1"})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)
	w = ts.do(t, call{method: http.MethodDelete, path: path, user: "int-1"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, call{method: http.MethodGet, path: path, user: "int-1"})
	wantError(t, w, http.StatusNotFound, "candidate_not_found")
}

func TestCandidates_PostChatMessage(t *testing.T) {
	ts := newTestServer(t)
	room := ts.seedRoom(t, "int-1")
	cand := ts.seedCandidate(t, room.Code, "cand-1")
	path := "/candidates/" + cand.ID + "/chat"

	w := ts.do(t, call{method: http.MethodPost, path: path, user: "cand-1", body: PostChatMessageRequest{Type: "user", Content: "hello\r\n\r\n\r\nthere "}})
	if w.Code != http.StatusCreated {
		t.Fatalf("post chat: %d %s", w.Code, w.Body.String())
	}
	msg := decode[domain.ChatMessage](t, w)
	if msg.ID == "" || msg.Timestamp == 0 || msg.Content != "hello\n\nthere" || msg.Type != domain.MessageUser {
		t.Fatalf("unexpected message %+v", msg)
	}

	w = ts.do(t, call{method: http.MethodPost, path: path, user: "cand-1", body: PostChatMessageRequest{Type: "user", Content: " \n "}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
	w = ts.do(t, call{method: http.MethodPost, path: path, user: "cand-1", body: PostChatMessageRequest{Type: "admin", Content: "x"}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestCandidates_PostAnswerIdempotent(t *testing.T) {
	ts := newTestServer(t)
	room := ts.seedRoom(t, "int-1")
	cand := ts.seedCandidate(t, room.Code, "cand-1")
	path := "/candidates/" + cand.ID + "/answers"
	body := PostAnswerRequest{QuestionID: "q-1", Question: "What is a goroutine?", Answer: "A light thread", Difficulty: "Easy", TimeSpent: 9, Score: 8}
	key := map[string]string{"Idempotency-Key": "k-1"}

	w := ts.do(t, call{method: http.MethodPost, path: path, user: "cand-1", body: body, headers: key})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)

	w = ts.do(t, call{method: http.MethodPost, path: path, user: "int-1", body: body, headers: key})
	if w.Code != http.StatusCreated {
		t.Fatalf("post answer: %d %s", w.Code, w.Body.String())
	}
	qa := decode[domain.QuestionAnswer](t, w)
	if qa.TimeLimit != 20 || qa.Score != 8 {
		t.Fatalf("unexpected answer %+v", qa)
	}

	w = ts.do(t, call{method: http.MethodPost, path: path, user: "int-1", body: body, headers: key})
	if w.Code != http.StatusCreated || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	if decode[domain.QuestionAnswer](t, w).QuestionID != "q-1" {
		t.Fatalf("replay returned another answer")
	}

	w = ts.do(t, call{method: http.MethodPost, path: path, user: "int-1", body: body, headers: map[string]string{"Idempotency-Key": "k-2"}})
	wantError(t, w, http.StatusConflict, "conflict")

	got, _ := ts.cands.Get(context.Background(), cand.ID)
	if len(got.QuestionsAnswers) != 1 || got.Status != domain.StatusInProgress {
		t.Fatalf("stored = %d answers, status %s", len(got.QuestionsAnswers), got.Status)
	}
}

// ---------- intake ----------

func TestIntake_ResumeAndContact(t *testing.T) {
	ts := newTestServer(t)
	var gotCode string
	var gotIn services.ResumeInput
	ts.sessions.resume = func(ident domain.Identity, code string, in services.ResumeInput) (*domain.Candidate, interview.Intake, error) {
		if code == "INT-CLOSED" {
			return nil, interview.Intake{}, services.ErrRoomClosed
		}
		gotCode, gotIn = code, in
		return &domain.Candidate{ID: "c-1", UserID: ident.UserID}, interview.Intake{
			Stage:   interview.StageCollectInfo,
			Missing: []interview.ContactField{interview.FieldPhone},
		}, nil
	}
	var gotForm interview.ContactForm
	ts.sessions.contact = func(_ domain.Identity, id string, form interview.ContactForm) (*domain.Candidate, interview.Intake, error) {
		gotForm = form
		return &domain.Candidate{ID: id}, interview.Intake{Stage: interview.StageInterview}, nil
	}

	w := ts.do(t, call{method: http.MethodPost, path: "/rooms/INT-ABCDEF/resume", user: "cand-1", body: PostResumeRequest{}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	file := &domain.ResumeFile{Name: "cv.pdf", Type: "application/pdf", Data: "JVBERi0="}
	w = ts.do(t, call{method: http.MethodPost, path: "/rooms/INT-ABCDEF/resume", user: "cand-1", body: PostResumeRequest{ResumeText: "Ada", ResumeFile: file}})
	if w.Code != http.StatusCreated {
		t.Fatalf("resume: %d %s", w.Code, w.Body.String())
	}
	res := decode[IntakeResponse](t, w)
	if res.Stage != interview.StageCollectInfo || len(res.MissingFields) != 1 || res.MissingFields[0] != interview.FieldPhone {
		t.Fatalf("intake = %+v", res)
	}
	if gotCode != "INT-ABCDEF" || gotIn.Text != "Ada" || gotIn.File == nil || gotIn.File.Name != "cv.pdf" {
		t.Fatalf("forwarded %q %+v", gotCode, gotIn)
	}

	w = ts.do(t, call{method: http.MethodPost, path: "/rooms/INT-CLOSED/resume", user: "cand-1", body: PostResumeRequest{ResumeText: "Ada"}})
	wantError(t, w, http.StatusConflict, "room_closed")

	w = ts.do(t, call{method: http.MethodPost, path: "/candidates/c-1/contact", user: "cand-1", body: map[string]string{"phone": " 555-123-4567 "}})
	if w.Code != http.StatusOK {
		t.Fatalf("contact: %d %s", w.Code, w.Body.String())
	}
	if res := decode[IntakeResponse](t, w); res.Stage != interview.StageInterview || res.MissingFields == nil {
		t.Fatalf("contact intake = %+v", res)
	}
	if gotForm.Name.Present || gotForm.Email.Present || gotForm.Phone != interview.Set("555-123-4567") {
		t.Fatalf("form = %+v", gotForm)
	}
}

// ---------- session ----------

func TestSession_OpenDraftSnapshot(t *testing.T) {
	ts := newTestServer(t)
	q := &domain.Question{ID: "q-2", Text: "Explain channels", Difficulty: domain.DifficultyEasy, TimeLimit: 20}
	ts.sessions.view = services.View{
		CandidateID: "c-1", Status: domain.StatusInProgress, Stage: interview.StageInterview,
		Index: 1, Total: 6, Question: q, Remaining: 14, InputEnabled: true, Live: true,
	}

	w := ts.do(t, call{method: http.MethodPost, path: "/candidates/c-1/session", user: "cand-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("open: %d %s", w.Code, w.Body.String())
	}
	v := decode[SessionView](t, w)
	if v.Index != 1 || v.Remaining != 14 || v.Question == nil || v.Question.ID != "q-2" || !v.Live {
		t.Fatalf("view = %+v", v)
	}

	w = ts.do(t, call{method: http.MethodPut, path: "/candidates/c-1/session/draft", user: "cand-1", body: AnswerTextRequest{Text: "typed so far"}})
	if w.Code != http.StatusOK || decode[SessionView](t, w).Draft != "typed so far" {
		t.Fatalf("draft: %d %s", w.Code, w.Body.String())
	}

	ts.h.MaxAnswerRunes = 5
	w = ts.do(t, call{method: http.MethodPut, path: "/candidates/c-1/session/draft", user: "cand-1", body: AnswerTextRequest{Text: "ééééééé"}})
	wantError(t, w, http.StatusBadRequest, ErrCodeValidation)
	if len(ts.sessions.drafts) != 1 {
		t.Fatalf("oversized draft reached the session")
	}

	ts.sessions.viewErr = services.ErrSessionLocked
	w = ts.do(t, call{method: http.MethodGet, path: "/candidates/c-1/session", user: "cand-1"})
	wantError(t, w, http.StatusConflict, "session_locked")

	w = ts.do(t, call{method: http.MethodGet, path: "/candidates/c-1/session"})
	wantError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestSession_SubmitIdempotent(t *testing.T) {
	ts := newTestServer(t)
	room := ts.seedRoom(t, "int-1")
	cand := ts.seedCandidate(t, room.Code, "cand-1")
	ts.sessions.submit = func(id, text string) (interview.Outcome, error) {
		qa := domain.QuestionAnswer{QuestionID: "q-1", Question: "Q1", Answer: text, Difficulty: domain.DifficultyEasy, TimeSpent: 4, Score: 6}
		if _, err := ts.cands.AppendQuestionAnswer(context.Background(), id, qa); err != nil {
			return interview.Outcome{}, err
		}
		return interview.Outcome{QuestionID: "q-1", Evaluation: domain.Evaluation{Score: 6, Feedback: "Solid."}}, nil
	}
	path := "/candidates/" + cand.ID + "/session/submit"
	key := map[string]string{"Idempotency-Key": "submit-1"}

	w := ts.do(t, call{method: http.MethodPost, path: path, user: "cand-1", body: AnswerTextRequest{Text: "my answer"}, headers: key})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	out := decode[SubmitAnswerResponse](t, w)
	if out.QuestionID != "q-1" || out.Score != 6 || out.Feedback != "Solid." || out.Completed {
		t.Fatalf("outcome = %+v", out)
	}

	w = ts.do(t, call{method: http.MethodPost, path: path, user: "cand-1", body: AnswerTextRequest{Text: "my answer"}, headers: key})
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d %s", w.Code, w.Body.String())
	}
	if out := decode[SubmitAnswerResponse](t, w); out.QuestionID != "q-1" || out.Score != 6 {
		t.Fatalf("replayed = %+v", out)
	}
	if ts.sessions.submits != 1 {
		t.Fatalf("submits = %d, want 1", ts.sessions.submits)
	}

	ts.sessions.submit = func(string, string) (interview.Outcome, error) {
		return interview.Outcome{}, domain.Persistence(errors.New("disk full"))
	}
	w = ts.do(t, call{method: http.MethodPost, path: path, user: "cand-1", body: AnswerTextRequest{Text: "again"}})
	wantError(t, w, http.StatusServiceUnavailable, ErrCodeSubmissionFailed)
}
