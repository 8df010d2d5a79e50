// Package services – CandidateService
//
// This file implements CandidateService, the single owner of candidate
// records. A candidate is one interview attempt by one identity in one room.
// The service enforces the record's lifecycle rules:
//   - one attempt per identity per room; a completed attempt blocks retakes
//   - the chat log and the answer list only grow
//   - status only moves forward, and completed records are immutable
//   - finalScore is always the rounded mean of the stored answer scores
//
// It also implements interview.Recorder, the transactional write path used
// by live interview sessions.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/repo"
	"github.com/tbourn/go-interview-backend/internal/utils"
)

// RoomRegistry is the room access CandidateService needs. Membership is
// recorded only through Join.
type RoomRegistry interface {
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	Join(ctx context.Context, code, userID string) (*domain.Room, error)
}

// CandidateService manages candidate records.
type CandidateService struct {
	DB    *gorm.DB
	Rooms RoomRegistry
	// MaxAnswers is the size of a question set.
	MaxAnswers int
	Now        func() time.Time
}

// NewCandidateService constructs a CandidateService for six-question
// interviews.
func NewCandidateService(db *gorm.DB, rooms RoomRegistry) *CandidateService {
	return &CandidateService{DB: db, Rooms: rooms, MaxAnswers: 6, Now: time.Now}
}

// NewCandidate carries the fields of a new attempt.
type NewCandidate struct {
	RoomCode           string
	Name               string
	Email              string
	Phone              string
	ResumeText         string
	ResumeFile         *domain.ResumeFile
	ProfileDescription string
}

// CandidatePatch lists the fields UpdateCandidate may change. Nil means
// unchanged. ChatHistory and QuestionsAnswers must extend the stored lists;
// FinalScore and Summary are accepted only together with completion.
type CandidatePatch struct {
	Status             *domain.Status
	FinalScore         *float64
	Summary            *string
	ProfileDescription *string
	ChatHistory        *[]domain.ChatMessage
	QuestionsAnswers   *[]domain.QuestionAnswer
}

// JoinResult is the outcome of entering a room as a candidate.
type JoinResult struct {
	Room      *domain.Room
	Candidate *domain.Candidate
	Stage     interview.Stage
}

func (s *CandidateService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CandidateService) maxAnswers() int {
	if s.MaxAnswers > 0 {
		return s.MaxAnswers
	}
	return 6
}

func candidateTracer() trace.Tracer { return otel.Tracer("services/CandidateService") }

// Create inserts a new pending attempt for ident in an active room.
func (s *CandidateService) Create(ctx context.Context, ident domain.Identity, in NewCandidate) (*domain.Candidate, error) {
	code := NormalizeRoomCode(in.RoomCode)
	ctx, span := candidateTracer().Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("room.code", code),
			attribute.String("user.id", ident.UserID),
		),
	)
	defer span.End()

	if ident.Anonymous() {
		return nil, ErrMissingIdentity
	}
	if code == "" {
		return nil, ErrInvalidRoomCode
	}
	if in.ResumeFile != nil {
		if err := domain.Validate(in.ResumeFile); err != nil {
			return nil, err
		}
	}
	room, err := s.Rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrRoomClosed
	}
	if existing, err := s.FindAttempt(ctx, code, ident); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrAttemptExists
	}

	c := &domain.Candidate{
		ID:                 uuid.NewString(),
		UserID:             ident.UserID,
		AccountEmail:       strings.TrimSpace(ident.Email),
		RoomCode:           code,
		Name:               strings.TrimSpace(in.Name),
		Email:              strings.TrimSpace(in.Email),
		Phone:              strings.TrimSpace(in.Phone),
		ResumeText:         in.ResumeText,
		ResumeFile:         in.ResumeFile,
		ProfileDescription: strings.TrimSpace(in.ProfileDescription),
		Status:             domain.StatusPending,
		CreatedAt:          s.now(),
		ChatHistory:        []domain.ChatMessage{},
		QuestionsAnswers:   []domain.QuestionAnswer{},
	}
	if err := repo.CreateCandidate(ctx, s.DB, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAttemptExists
		}
		return nil, err
	}
	if _, err := s.Rooms.Join(ctx, code, ident.UserID); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("candidate.id", c.ID))
	return c, nil
}

// Get returns a candidate with its transcript.
func (s *CandidateService) Get(ctx context.Context, id string) (*domain.Candidate, error) {
	ctx, span := candidateTracer().Start(ctx, "Get", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	c, err := repo.GetCandidate(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCandidateNotFound
	}
	return c, err
}

// ListByRoom returns every candidate of a room, oldest first.
func (s *CandidateService) ListByRoom(ctx context.Context, code string) ([]domain.Candidate, error) {
	code = NormalizeRoomCode(code)
	ctx, span := candidateTracer().Start(ctx, "ListByRoom", trace.WithAttributes(attribute.String("room.code", code)))
	defer span.End()

	out, err := repo.ListCandidatesByRoom(ctx, s.DB, code)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Candidate{}
	}
	return out, nil
}

// ListPage returns a ranked page of a room's candidates and the total.
func (s *CandidateService) ListPage(ctx context.Context, code string, page, pageSize int) ([]domain.Candidate, int64, error) {
	code = NormalizeRoomCode(code)
	ctx, span := candidateTracer().Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("room.code", code),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountCandidates(ctx, s.DB, code)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Candidate{}, 0, nil
	}
	items, err := repo.ListCandidatesPage(ctx, s.DB, code, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// FindAttempt returns ident's attempt in the room, or nil when there is
// none. A completed attempt is returned together with ErrAttemptCompleted.
// When ident's account email belongs to another user's attempt it returns
// ErrIdentityConflict and no record.
func (s *CandidateService) FindAttempt(ctx context.Context, code string, ident domain.Identity) (*domain.Candidate, error) {
	if ident.Anonymous() {
		return nil, ErrMissingIdentity
	}
	c, err := repo.FindCandidateByIdentity(ctx, s.DB, NormalizeRoomCode(code), ident.UserID, ident.Email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if errors.Is(err, repo.ErrIdentityConflict) {
		return nil, ErrIdentityConflict
	}
	if err != nil {
		return nil, err
	}
	if c.Status == domain.StatusCompleted {
		return c, ErrAttemptCompleted
	}
	return c, nil
}

// JoinInterview enters a room as a candidate. A completed attempt blocks
// the join; an unfinished one is returned for resumption; otherwise the
// caller proceeds to résumé upload. Closed rooms still admit the resumption
// of an existing attempt.
func (s *CandidateService) JoinInterview(ctx context.Context, code string, ident domain.Identity) (*JoinResult, error) {
	code = NormalizeRoomCode(code)
	ctx, span := candidateTracer().Start(ctx, "JoinInterview",
		trace.WithAttributes(
			attribute.String("room.code", code),
			attribute.String("user.id", ident.UserID),
		),
	)
	defer span.End()

	if ident.Anonymous() {
		return nil, ErrMissingIdentity
	}
	if code == "" {
		return nil, ErrInvalidRoomCode
	}
	room, err := s.Rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	existing, err := s.FindAttempt(ctx, code, ident)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if room, err = s.Rooms.Join(ctx, code, ident.UserID); err != nil {
			return nil, err
		}
	}
	res := &JoinResult{Room: room, Stage: interview.StageUpload}
	if existing != nil {
		full, err := s.Get(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		res.Candidate = full
		res.Stage = interview.StageOf(full)
	}
	return res, nil
}

// Update applies patch under the lifecycle rules and returns the stored
// record.
func (s *CandidateService) Update(ctx context.Context, id string, patch CandidatePatch) (*domain.Candidate, error) {
	ctx, span := candidateTracer().Start(ctx, "Update", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := repo.GetCandidate(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCandidateNotFound
		}
		if err != nil {
			return err
		}
		if cur.Status == domain.StatusCompleted {
			return ErrCandidateCompleted
		}

		fields := map[string]any{}
		next := cur.Status
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return ErrInvalidStatus
			}
			if !cur.Status.CanAdvanceTo(*patch.Status) {
				return ErrStatusRegression
			}
			next = *patch.Status
			fields["status"] = next
		}
		completing := next == domain.StatusCompleted
		if !completing && (patch.FinalScore != nil || patch.Summary != nil) {
			return domain.Invalid("final_score", "final score and summary are set on completion only")
		}
		if patch.ProfileDescription != nil {
			fields["profile_description"] = strings.TrimSpace(*patch.ProfileDescription)
		}

		if patch.ChatHistory != nil {
			tail, err := chatTail(cur.ChatHistory, *patch.ChatHistory)
			if err != nil {
				return err
			}
			for i := range tail {
				if err := s.appendMessage(ctx, tx, id, &tail[i]); err != nil {
					return err
				}
			}
		}

		answers := cur.QuestionsAnswers
		if patch.QuestionsAnswers != nil {
			tail, err := answerTail(cur.QuestionsAnswers, *patch.QuestionsAnswers)
			if err != nil {
				return err
			}
			if len(cur.QuestionsAnswers)+len(tail) > s.maxAnswers() {
				return ErrAnswerLimit
			}
			for i := range tail {
				if err := s.appendAnswer(ctx, tx, id, &tail[i]); err != nil {
					return err
				}
				answers = append(answers, tail[i])
			}
			if len(tail) > 0 && next == domain.StatusPending {
				next = domain.StatusInProgress
				fields["status"] = next
			}
		}

		if completing {
			score, err := interview.FinalScore(answers)
			if err != nil {
				return err
			}
			if patch.FinalScore != nil && interview.RoundScore(*patch.FinalScore) != score {
				return domain.Invalid("final_score", "final score must equal the rounded mean of the answer scores")
			}
			fields["final_score"] = score
			if patch.Summary != nil {
				fields["summary"] = strings.TrimSpace(*patch.Summary)
			}
		}
		return repo.UpdateCandidateFields(ctx, tx, id, fields)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// chatTail returns the entries of next beyond stored, requiring next to
// start with stored.
func chatTail(stored, next []domain.ChatMessage) ([]domain.ChatMessage, error) {
	if len(next) < len(stored) {
		return nil, domain.Invalid("chat_history", "chat history can only grow")
	}
	for i, m := range stored {
		if next[i].ID != m.ID || next[i].Content != m.Content || next[i].Type != m.Type {
			return nil, domain.Invalid("chat_history", "chat history must extend the stored history")
		}
	}
	return append([]domain.ChatMessage(nil), next[len(stored):]...), nil
}

// answerTail is chatTail for the answer list.
func answerTail(stored, next []domain.QuestionAnswer) ([]domain.QuestionAnswer, error) {
	if len(next) < len(stored) {
		return nil, domain.Invalid("questions_answers", "answers can only grow")
	}
	for i, qa := range stored {
		if next[i].QuestionID != qa.QuestionID || next[i].Answer != qa.Answer || next[i].Score != qa.Score {
			return nil, domain.Invalid("questions_answers", "answers must extend the stored answers")
		}
	}
	return append([]domain.QuestionAnswer(nil), next[len(stored):]...), nil
}

// AppendChatMessage adds one message to the transcript.
func (s *CandidateService) AppendChatMessage(ctx context.Context, id string, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	ctx, span := candidateTracer().Start(ctx, "AppendChatMessage", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireOpen(ctx, tx, id); err != nil {
			return err
		}
		return s.appendMessage(ctx, tx, id, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// AppendQuestionAnswer adds one scored answer. The first answer moves a
// pending attempt to in-progress.
func (s *CandidateService) AppendQuestionAnswer(ctx context.Context, id string, qa domain.QuestionAnswer) (*domain.QuestionAnswer, error) {
	ctx, span := candidateTracer().Start(ctx, "AppendQuestionAnswer",
		trace.WithAttributes(
			attribute.String("candidate.id", id),
			attribute.String("question.id", qa.QuestionID),
		),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireOpen(ctx, tx, id); err != nil {
			return err
		}
		n, err := repo.CountQuestionAnswers(ctx, tx, id)
		if err != nil {
			return err
		}
		if int(n) >= s.maxAnswers() {
			return ErrAnswerLimit
		}
		if err := s.appendAnswer(ctx, tx, id, &qa); err != nil {
			return err
		}
		return s.markInProgress(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return &qa, nil
}

// Delete removes a candidate and its transcript.
func (s *CandidateService) Delete(ctx context.Context, id string) error {
	ctx, span := candidateTracer().Start(ctx, "Delete", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.DeleteCandidate(ctx, tx, id)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrCandidateNotFound
	}
	return err
}

// CompleteContact fills the missing contact fields of a candidate from form.
// All missing fields must be supplied together; nothing is stored otherwise.
func (s *CandidateService) CompleteContact(ctx context.Context, id string, form interview.ContactForm) (*domain.Candidate, interview.Intake, error) {
	ctx, span := candidateTracer().Start(ctx, "CompleteContact", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, interview.Intake{}, err
	}
	if c.Status == domain.StatusCompleted {
		return nil, interview.Intake{}, ErrCandidateCompleted
	}
	current := interview.ContactOf(c)
	next, err := interview.ApplyMissing(current, form)
	if err != nil {
		return nil, interview.EvaluateIntake(current), err
	}
	if next != current {
		err := repo.UpdateCandidateFields(ctx, s.DB, id, map[string]any{
			"name":  next.Name,
			"email": next.Email,
			"phone": next.Phone,
		})
		if errors.Is(err, repo.ErrNotFound) {
			return nil, interview.Intake{}, ErrCandidateNotFound
		}
		if err != nil {
			return nil, interview.Intake{}, err
		}
		c.Name, c.Email, c.Phone = next.Name, next.Email, next.Phone
	}
	return c, interview.EvaluateIntake(next), nil
}

// RecordStart stores the first announcement and moves the attempt to
// in-progress.
func (s *CandidateService) RecordStart(ctx context.Context, id string, announce domain.ChatMessage) error {
	ctx, span := candidateTracer().Start(ctx, "RecordStart", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.status(ctx, tx, id)
		if err != nil {
			return err
		}
		switch st {
		case domain.StatusCompleted:
			return ErrCandidateCompleted
		case domain.StatusInProgress:
			return ErrAnswerOutOfOrder
		}
		if err := s.appendMessage(ctx, tx, id, &announce); err != nil {
			return err
		}
		return repo.UpdateCandidateFields(ctx, tx, id, map[string]any{"status": domain.StatusInProgress})
	})
}

// RecordAnswer stores one submission: the user's answer, the scored entry,
// the feedback and the next announcement, in that order. The answer must be
// for the next open position.
func (s *CandidateService) RecordAnswer(ctx context.Context, id string, rec interview.AnswerRecord) error {
	ctx, span := candidateTracer().Start(ctx, "RecordAnswer",
		trace.WithAttributes(
			attribute.String("candidate.id", id),
			attribute.Int("position", rec.Position),
		),
	)
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireOpen(ctx, tx, id); err != nil {
			return err
		}
		n, err := repo.CountQuestionAnswers(ctx, tx, id)
		if err != nil {
			return err
		}
		if int(n) >= s.maxAnswers() {
			return ErrAnswerLimit
		}
		if int(n) != rec.Position {
			return ErrAnswerOutOfOrder
		}
		user, feedback, qa := rec.User, rec.Feedback, rec.Answer
		if err := s.appendMessage(ctx, tx, id, &user); err != nil {
			return err
		}
		if err := s.appendAnswer(ctx, tx, id, &qa); err != nil {
			return err
		}
		if err := s.appendMessage(ctx, tx, id, &feedback); err != nil {
			return err
		}
		if rec.Next != nil {
			next := *rec.Next
			if err := s.appendMessage(ctx, tx, id, &next); err != nil {
				return err
			}
		}
		return s.markInProgress(ctx, tx, id)
	})
}

// RecordCompletion finalizes the attempt. The stored score is recomputed
// from the stored answers and must match finalScore.
func (s *CandidateService) RecordCompletion(ctx context.Context, id string, finalScore float64, summary string, msg domain.ChatMessage) error {
	ctx, span := candidateTracer().Start(ctx, "RecordCompletion", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetCandidate(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCandidateNotFound
		}
		if err != nil {
			return err
		}
		if c.Status == domain.StatusCompleted {
			return ErrCandidateCompleted
		}
		score, err := interview.FinalScore(c.QuestionsAnswers)
		if err != nil {
			return err
		}
		if score != interview.RoundScore(finalScore) {
			return ErrAnswerOutOfOrder
		}
		if err := s.appendMessage(ctx, tx, id, &msg); err != nil {
			return err
		}
		return repo.UpdateCandidateFields(ctx, tx, id, map[string]any{
			"status":      domain.StatusCompleted,
			"final_score": score,
			"summary":     summary,
		})
	})
}

func (s *CandidateService) status(ctx context.Context, tx *gorm.DB, id string) (domain.Status, error) {
	st, err := repo.GetCandidateStatus(ctx, tx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrCandidateNotFound
	}
	return st, err
}

func (s *CandidateService) requireOpen(ctx context.Context, tx *gorm.DB, id string) error {
	st, err := s.status(ctx, tx, id)
	if err != nil {
		return err
	}
	if st == domain.StatusCompleted {
		return ErrCandidateCompleted
	}
	return nil
}

func (s *CandidateService) markInProgress(ctx context.Context, tx *gorm.DB, id string) error {
	return tx.WithContext(ctx).
		Model(&domain.Candidate{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{"status": domain.StatusInProgress, "updated_at": s.now()}).Error
}

func (s *CandidateService) appendMessage(ctx context.Context, tx *gorm.DB, id string, m *domain.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp == 0 {
		m.Timestamp = s.now().UnixMilli()
	}
	if err := domain.Validate(m); err != nil {
		return err
	}
	if err := repo.AppendChatMessage(ctx, tx, id, m); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrAnswerOutOfOrder
		}
		return err
	}
	return nil
}

func (s *CandidateService) appendAnswer(ctx context.Context, tx *gorm.DB, id string, qa *domain.QuestionAnswer) error {
	if qa.TimeLimit == 0 {
		qa.TimeLimit = qa.Difficulty.TimeLimit()
	}
	if err := domain.Validate(qa); err != nil {
		return err
	}
	if err := repo.AppendQuestionAnswer(ctx, tx, id, qa); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateAnswer
		}
		return err
	}
	return nil
}
