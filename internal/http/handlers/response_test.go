package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestResponseHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	lg := zerolog.New(&logs)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-7")
		c.Set("logger", &lg)
		c.Next()
	})
	r.GET("/rooms/:code", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
	})
	r.POST("/candidates/:id/session/submit", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "store unavailable")
	})
	r.POST("/rooms", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"code": "INT-7QK2ZD", "is_active": true})
	})
	r.DELETE("/candidates/:id", noContent)

	cases := []struct {
		method, path string
		status       int
		code, msg    string // empty code means a success body
		logged       bool
	}{
		{http.MethodGet, "/rooms/INT-NOPE00", http.StatusNotFound, "not_found", "room not found", false},
		{http.MethodPost, "/candidates/c-1/session/submit", http.StatusInternalServerError, "internal_error", "store unavailable", true},
		{http.MethodPost, "/rooms", http.StatusCreated, "", "", false},
		{http.MethodDelete, "/candidates/c-1", http.StatusNoContent, "", "", false},
	}
	for _, tc := range cases {
		logs.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.status {
			t.Fatalf("%s %s: status %d, want %d", tc.method, tc.path, w.Code, tc.status)
		}
		if got := strings.Contains(logs.String(), `"level":"error"`); got != tc.logged {
			t.Fatalf("%s %s: error logged = %v", tc.method, tc.path, got)
		}
		switch {
		case tc.code != "":
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if er != (ErrorResponse{RequestID: "rid-7", Code: tc.code, Message: tc.msg}) {
				t.Fatalf("%s %s: body %+v", tc.method, tc.path, er)
			}
		case tc.status == http.StatusNoContent:
			if w.Body.Len() != 0 {
				t.Fatalf("204 with body %q", w.Body.String())
			}
		default:
			var room map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &room); err != nil || room["code"] != "INT-7QK2ZD" || room["is_active"] != true {
				t.Fatalf("created body = %s (%v)", w.Body.String(), err)
			}
		}
	}
}

func Test_notModified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const etag = `W/"candidate:c-1:4:2:1700000000"`
	r := gin.New()
	r.GET("/candidates/:id", func(c *gin.Context) {
		if notModified(c, etag) {
			return
		}
		ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
	})

	cases := []struct {
		inm  string
		want int
	}{
		{"", http.StatusOK},
		{etag, http.StatusNotModified},
		{`"candidate:c-1:4:2:1700000000"`, http.StatusNotModified},
		{`W/"stale", ` + etag, http.StatusNotModified},
		{"*", http.StatusNotModified},
		{`W/"candidate:c-1:5:2:1700000000"`, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/candidates/c-1", nil)
		if tc.inm != "" {
			req.Header.Set("If-None-Match", tc.inm)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want || w.Header().Get("ETag") != etag {
			t.Fatalf("If-None-Match %q: status=%d etag=%q", tc.inm, w.Code, w.Header().Get("ETag"))
		}
		if tc.want == http.StatusNotModified && w.Body.Len() != 0 {
			t.Fatalf("304 with body %q", w.Body.String())
		}
	}
}
