// Live interview session handlers.
//
// A session is the timed question loop of one candidate. The server owns the
// countdown; clients poll the snapshot, push drafts and submit answers. A
// draft left when the countdown hits zero is submitted automatically.
package handlers

import (
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/services"
)

// SessionView is the render state of a session.
type SessionView struct {
	CandidateID   string                   `json:"candidate_id"`
	Status        domain.Status            `json:"status" example:"in-progress"`
	Stage         interview.Stage          `json:"stage" example:"interview"`
	MissingFields []interview.ContactField `json:"missing_fields,omitempty"`
	// Index is the zero-based position of the current question.
	Index        int              `json:"index" example:"2"`
	Total        int              `json:"total" example:"6"`
	Question     *domain.Question `json:"question,omitempty"`
	Remaining    int              `json:"remaining" example:"43"`
	Draft        string           `json:"draft"`
	InputEnabled bool             `json:"input_enabled"`
	Pending      bool             `json:"pending"`
	Live         bool             `json:"live"`
	FinalScore   float64          `json:"final_score,omitempty" example:"7.5"`
	Summary      string           `json:"summary,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
}

func sessionView(v services.View) SessionView {
	return SessionView{
		CandidateID:   v.CandidateID,
		Status:        v.Status,
		Stage:         v.Stage,
		MissingFields: v.MissingFields,
		Index:         v.Index,
		Total:         v.Total,
		Question:      v.Question,
		Remaining:     v.Remaining,
		Draft:         v.Draft,
		InputEnabled:  v.InputEnabled,
		Pending:       v.Pending,
		Live:          v.Live,
		FinalScore:    v.FinalScore,
		Summary:       v.Summary,
		LastError:     v.LastError,
	}
}

// AnswerTextRequest carries a draft or an answer.
type AnswerTextRequest struct {
	Text string `json:"text" example:"Goroutines are multiplexed onto OS threads."`
}

// SubmitAnswerResponse reports the evaluation of a submitted answer and,
// after the last question, the final result.
type SubmitAnswerResponse struct {
	QuestionID string  `json:"question_id" example:"q-1"`
	Score      float64 `json:"score" example:"8"`
	Feedback   string  `json:"feedback,omitempty"`
	Completed  bool    `json:"completed"`
	FinalScore float64 `json:"final_score,omitempty" example:"7.5"`
	Summary    string  `json:"summary,omitempty"`
}

func (h *Handlers) bindAnswerText(c *gin.Context) (string, bool) {
	var req AnswerTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return "", false
	}
	if h.MaxAnswerRunes > 0 && utf8.RuneCountInString(req.Text) > h.MaxAnswerRunes {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "answer too long")
		return "", false
	}
	return req.Text, true
}

// OpenSession godoc
// @ID          openSession
// @Summary     Start or resume the interview
// @Description Starts the question loop, or resumes it at the first unanswered question
// @Description with a full countdown. Another server holding the session yields session_locked.
// @Tags        Session
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"
// @Param       id         path    string  true  "Candidate ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.SessionView
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not your interview"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Locked, completed or contact details missing"
// @Failure     502  {object}  handlers.ErrorResponse  "Question provider failed"
// @Router      /candidates/{id}/session [post]
func (h *Handlers) OpenSession(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	v, err := h.sessions.Open(c.Request.Context(), ident, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sessionView(v))
}

// GetSession godoc
// @ID          getSession
// @Summary     Session snapshot
// @Description Returns the live state when the session is running here, otherwise the stored state.
// @Tags        Session
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"
// @Param       id         path    string  true  "Candidate ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.SessionView
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not your interview"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Router      /candidates/{id}/session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	v, err := h.sessions.Snapshot(c.Request.Context(), ident, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sessionView(v))
}

// PutDraft godoc
// @ID          putDraft
// @Summary     Update the answer draft
// @Description The draft is what gets submitted when the countdown expires.
// @Tags        Session
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"
// @Param       id         path    string  true  "Candidate ID (UUID)"  format(uuid)
// @Param       body       body    handlers.AnswerTextRequest  true  "Draft"
//
// @Success     200  {object}  handlers.SessionView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Session not running or input disabled"
// @Router      /candidates/{id}/session/draft [put]
func (h *Handlers) PutDraft(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	text, okText := h.bindAnswerText(c)
	if !okText {
		return
	}
	v, err := h.sessions.UpdateDraft(c.Request.Context(), ident, c.Param("id"), text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sessionView(v))
}

// SubmitAnswer godoc
// @ID          submitAnswer
// @Summary     Submit the answer to the current question
// @Description Scores the answer and advances. After the last question the response
// @Description carries the final score and summary.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Session
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (development header)"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true  "Candidate ID (UUID)"  format(uuid)
// @Param       body             body    handlers.AnswerTextRequest  true  "Answer"
//
// @Success     200  {object}  handlers.SubmitAnswerResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Submission in flight or interview completed"
// @Failure     503  {object}  handlers.ErrorResponse  "Submission failed, please retry"
// @Router      /candidates/{id}/session/submit [post]
func (h *Handlers) SubmitAnswer(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	text, okText := h.bindAnswerText(c)
	if !okText {
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	idem := h.idempotent(c, ident.UserID, id)
	if idem.replay(c) {
		return
	}

	out, err := h.sessions.Submit(ctx, ident, id, text)
	if err != nil {
		failErr(c, err)
		return
	}

	idem.respond(c, http.StatusOK, SubmitAnswerResponse{
		QuestionID: out.QuestionID,
		Score:      out.Evaluation.Score,
		Feedback:   out.Evaluation.Feedback,
		Completed:  out.Completed,
		FinalScore: out.FinalScore,
		Summary:    out.Summary,
	})
}

