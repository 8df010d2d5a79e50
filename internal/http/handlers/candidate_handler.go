// Candidate HTTP handlers.
//
// Responsibilities:
//   - expose the candidate record (transcript, answers, result) to the
//     candidate and to the interviewer who owns the room
//   - accept résumé and contact details during intake
//   - append chat messages and scored answers through CandidateService
//   - implement conditional responses (ETag) and idempotent answer posts
//
// A POST repeated with the same Idempotency-Key gets the stored response
// back with `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/repo"
	"github.com/tbourn/go-interview-backend/internal/services"
)

//
// DTOs
//

// ListCandidatesResponse is a page of candidates plus pagination metadata.
type ListCandidatesResponse struct {
	Candidates []domain.Candidate `json:"candidates"`
	Pagination Pagination         `json:"pagination"`
}

// PatchCandidateRequest carries an UpdateCandidate patch. Omitted fields are
// left unchanged.
type PatchCandidateRequest struct {
	Status             *string                  `json:"status,omitempty" example:"completed"`
	FinalScore         *float64                 `json:"final_score,omitempty" example:"7.5"`
	Summary            *string                  `json:"summary,omitempty"`
	ProfileDescription *string                  `json:"profile_description,omitempty"`
	ChatHistory        *[]domain.ChatMessage    `json:"chat_history,omitempty"`
	QuestionsAnswers   *[]domain.QuestionAnswer `json:"questions_answers,omitempty"`
}

// PostChatMessageRequest appends one transcript entry.
type PostChatMessageRequest struct {
	Type    string `json:"type" binding:"required,oneof=user bot system" example:"user"`
	Content string `json:"content" binding:"required" example:"Hello!"`
}

// PostAnswerRequest appends one scored answer.
type PostAnswerRequest struct {
	QuestionID string  `json:"question_id" binding:"required" example:"q-1"`
	Question   string  `json:"question" binding:"required"`
	Answer     string  `json:"answer"`
	Difficulty string  `json:"difficulty" binding:"required,oneof=Easy Medium Hard" example:"Easy"`
	TimeLimit  int     `json:"time_limit,omitempty" example:"20"`
	TimeSpent  int     `json:"time_spent" example:"12"`
	Score      float64 `json:"score" example:"8"`
}

// PostResumeRequest submits a résumé as text, as an encoded file, or both.
type PostResumeRequest struct {
	ResumeText string             `json:"resume_text,omitempty"`
	ResumeFile *domain.ResumeFile `json:"resume_file,omitempty"`
}

// PostContactRequest supplies missing contact fields. Every field the
// intake reported missing must be present.
type PostContactRequest struct {
	Name  *string `json:"name,omitempty" example:"Ada Lovelace"`
	Email *string `json:"email,omitempty" example:"ada@example.com"`
	Phone *string `json:"phone,omitempty" example:"+1 555 0100"`
}

// IntakeResponse reports the candidate and the stage intake reached.
type IntakeResponse struct {
	Candidate     *domain.Candidate        `json:"candidate"`
	Stage         interview.Stage          `json:"stage" example:"collect-info"`
	MissingFields []interview.ContactField `json:"missing_fields"`
}

func intakeResponse(cand *domain.Candidate, in interview.Intake) IntakeResponse {
	missing := in.Missing
	if missing == nil {
		missing = []interview.ContactField{}
	}
	return IntakeResponse{Candidate: cand, Stage: in.Stage, MissingFields: missing}
}

func contactValue(p *string) interview.ContactValue {
	if p == nil {
		return interview.ContactValue{}
	}
	return interview.Set(strings.TrimSpace(*p))
}

//
// Handlers
//

// ListRoomCandidates godoc
// @ID          listRoomCandidates
// @Summary     List a room's candidates
// @Description Returns candidates ordered by final score, highest first. Only the room owner may list.
// @Description Supports conditional GET via ETag.
// @Tags        Candidates
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (development header)"  example(interviewer-1)
// @Param       If-None-Match  header  string  false "Return 304 if the ETag matches"
// @Param       code           path    string  true  "Room code"  example(INT-7QK2ZD)
// @Param       page           query   int     false "Page number (1-based)"  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page (1–100)"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListCandidatesResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the room owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{code}/candidates [get]
func (h *Handlers) ListRoomCandidates(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	room, err := h.rooms.GetByCode(ctx, c.Param("code"))
	if err != nil {
		failErr(c, err)
		return
	}
	if room.OwnerID != ident.UserID {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only the room owner can list candidates")
		return
	}

	if db := h.db(); db != nil {
		count, maxTS, err := repo.CandidatesStats(ctx, db, room.Code)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UTC().UnixNano()
			}
			if notModified(c, fmt.Sprintf(`W/"candidates:%s:%d:%d"`, room.Code, count, ts)) {
				return
			}
		}
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.candidates.ListPage(ctx, room.Code, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListCandidatesResponse{
		Candidates: items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetCandidate godoc
// @ID          getCandidate
// @Summary     Get a candidate with transcript and answers
// @Description Visible to the candidate and to the room owner. Supports conditional GET via ETag.
// @Tags        Candidates
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (development header)"
// @Param       If-None-Match  header  string  false "Return 304 if the ETag matches"
// @Param       id             path    string  true  "Candidate ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Candidate
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Router      /candidates/{id} [get]
func (h *Handlers) GetCandidate(c *gin.Context) {
	id := c.Param("id")
	cand, _, okC := h.candidateFor(c, id)
	if !okC {
		return
	}
	if db := h.db(); db != nil {
		msgs, answers, updated, err := repo.TranscriptStats(c.Request.Context(), db, id)
		if err == nil {
			if notModified(c, fmt.Sprintf(`W/"candidate:%s:%d:%d:%d"`, id, msgs, answers, updated.UTC().UnixNano())) {
				return
			}
		}
	}
	ok(c, http.StatusOK, cand)
}

// PatchCandidate godoc
// @ID          patchCandidate
// @Summary     Update a candidate
// @Description Chat history and answers may only be extended. Status moves forward only and
// @Description a completed candidate is immutable. Only the room owner may update.
// @Tags        Candidates
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"
// @Param       id         path    string  true  "Candidate ID (UUID)"  format(uuid)
// @Param       body       body    handlers.PatchCandidateRequest  true  "Patch"
//
// @Success     200  {object}  domain.Candidate
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the room owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Conflict"
// @Failure     503  {object}  handlers.ErrorResponse  "Submission failed"
// @Router      /candidates/{id} [patch]
func (h *Handlers) PatchCandidate(c *gin.Context) {
	id := c.Param("id")
	if _, _, okC := h.candidateForOwner(c, id, "only the room owner can update candidates"); !okC {
		return
	}
	var req PatchCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	patch := services.CandidatePatch{
		FinalScore:         req.FinalScore,
		Summary:            req.Summary,
		ProfileDescription: req.ProfileDescription,
		ChatHistory:        req.ChatHistory,
		QuestionsAnswers:   req.QuestionsAnswers,
	}
	if req.Status != nil {
		st := domain.Status(*req.Status)
		patch.Status = &st
	}
	cand, err := h.candidates.Update(c.Request.Context(), id, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cand)
}

// DeleteCandidate godoc
// @ID          deleteCandidate
// @Summary     Delete a candidate
// @Description Removes the attempt with its transcript. Only the room owner may delete.
// @Tags        Candidates
//
// @Param       X-User-ID  header  string  false "User ID (development header)"
// @Param       id         path    string  true  "Candidate ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the room owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Router      /candidates/{id} [delete]
func (h *Handlers) DeleteCandidate(c *gin.Context) {
	id := c.Param("id")
	if _, _, okC := h.candidateForOwner(c, id, "only the room owner can delete candidates"); !okC {
		return
	}
	if err := h.candidates.Delete(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostChatMessage godoc
// @ID          postChatMessage
// @Summary     Append a chat message
// @Tags        Candidates
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"
// @Param       id         path    string  true  "Candidate ID (UUID)"  format(uuid)
// @Param       body       body    handlers.PostChatMessageRequest  true  "Message"
//
// @Success     201  {object}  domain.ChatMessage
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Interview completed"
// @Router      /candidates/{id}/chat [post]
func (h *Handlers) PostChatMessage(c *gin.Context) {
	id := c.Param("id")
	if _, _, okC := h.candidateFor(c, id); !okC {
		return
	}
	var req PostChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type and content are required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content must not be empty")
		return
	}
	msg, err := h.candidates.AppendChatMessage(c.Request.Context(), id, domain.ChatMessage{
		Type:    domain.MessageType(req.Type),
		Content: content,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, msg)
}

// PostAnswer godoc
// @ID          postAnswer
// @Summary     Append a scored answer
// @Description The first answer moves a pending candidate to in-progress. Only the room owner
// @Description may post answers; live sessions record theirs through the interview endpoints.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Candidates
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (development header)"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true  "Candidate ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PostAnswerRequest  true  "Answer"
//
// @Success     201  {object}  domain.QuestionAnswer
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the room owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already answered or completed"
// @Failure     503  {object}  handlers.ErrorResponse  "Submission failed"
// @Router      /candidates/{id}/answers [post]
func (h *Handlers) PostAnswer(c *gin.Context) {
	id := c.Param("id")
	_, ident, okC := h.candidateForOwner(c, id, "only the room owner can post answers")
	if !okC {
		return
	}
	var req PostAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question_id, question and difficulty are required")
		return
	}
	ctx := c.Request.Context()

	idem := h.idempotent(c, ident.UserID, id)
	if idem.replay(c) {
		return
	}

	qa, err := h.candidates.AppendQuestionAnswer(ctx, id, domain.QuestionAnswer{
		QuestionID: req.QuestionID,
		Question:   req.Question,
		Answer:     sanitizeContent(req.Answer),
		Difficulty: domain.Difficulty(req.Difficulty),
		TimeLimit:  req.TimeLimit,
		TimeSpent:  req.TimeSpent,
		Score:      req.Score,
	})
	if err != nil {
		failErr(c, err)
		return
	}

	idem.respond(c, http.StatusCreated, qa)
}

// PostResume godoc
// @ID          postResume
// @Summary     Submit a résumé
// @Description Creates the caller's attempt in the room from a résumé (text, PDF or DOCX).
// @Description The response says whether contact details are still missing (collect-info)
// @Description or the interview can start.
// @Tags        Intake
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID     header  string  false "User ID (development header)"
// @Param       X-User-Email  header  string  false "User email (development header)"
// @Param       code          path    string  true  "Room code"  example(INT-7QK2ZD)
// @Param       body          body    handlers.PostResumeRequest  true  "Résumé"
//
// @Success     201  {object}  handlers.IntakeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unreadable résumé"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Room closed or attempt completed"
// @Router      /rooms/{code}/resume [post]
func (h *Handlers) PostResume(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	var req PostResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ResumeText) == "" && req.ResumeFile == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "resume_text or resume_file is required")
		return
	}
	cand, in, err := h.sessions.SubmitResume(c.Request.Context(), ident, c.Param("code"), services.ResumeInput{
		Text: req.ResumeText,
		File: req.ResumeFile,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, intakeResponse(cand, in))
}

// PostContact godoc
// @ID          postContact
// @Summary     Supply missing contact details
// @Description All fields reported missing must be supplied together; nothing is stored otherwise.
// @Tags        Intake
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (development header)"
// @Param       id         path    string  true  "Candidate ID (UUID)"  format(uuid)
// @Param       body       body    handlers.PostContactRequest  true  "Contact details"
//
// @Success     200  {object}  handlers.IntakeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid field"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "Candidate not found"
// @Router      /candidates/{id}/contact [post]
func (h *Handlers) PostContact(c *gin.Context) {
	ident, okID := identity(c)
	if !okID {
		return
	}
	var req PostContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cand, in, err := h.sessions.SubmitMissingFields(c.Request.Context(), ident, c.Param("id"), interview.ContactForm{
		Name:  contactValue(req.Name),
		Email: contactValue(req.Email),
		Phone: contactValue(req.Phone),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, intakeResponse(cand, in))
}
