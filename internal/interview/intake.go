package interview

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// Stage is the coarse phase of a candidate session.
type Stage string

const (
	StageUpload      Stage = "upload"
	StageCollectInfo Stage = "collect-info"
	StageInterview   Stage = "interview"
	StageCompleted   Stage = "completed"
)

// ContactField is one of the three contact fields a résumé may be missing.
type ContactField string

const (
	FieldName  ContactField = "name"
	FieldEmail ContactField = "email"
	FieldPhone ContactField = "phone"
)

// ContactValue is a form entry with an explicit presence flag, so "not sent"
// and "sent empty" stay distinguishable.
type ContactValue struct {
	Present bool
	Value   string
}

// Set returns a present value.
func Set(v string) ContactValue { return ContactValue{Present: true, Value: v} }

// ContactForm is the closed set of contact fields a candidate can supply.
type ContactForm struct {
	Name  ContactValue
	Email ContactValue
	Phone ContactValue
}

func (f ContactForm) get(field ContactField) ContactValue {
	switch field {
	case FieldName:
		return f.Name
	case FieldEmail:
		return f.Email
	case FieldPhone:
		return f.Phone
	}
	return ContactValue{}
}

// Contact holds resolved contact values.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Missing lists the empty fields in the order name, email, phone.
func (c Contact) Missing() []ContactField {
	var out []ContactField
	if strings.TrimSpace(c.Name) == "" {
		out = append(out, FieldName)
	}
	if strings.TrimSpace(c.Email) == "" {
		out = append(out, FieldEmail)
	}
	if strings.TrimSpace(c.Phone) == "" {
		out = append(out, FieldPhone)
	}
	return out
}

// Intake is the outcome of résumé submission.
type Intake struct {
	Stage   Stage
	Missing []ContactField
}

// EvaluateIntake decides the stage that follows résumé submission: the
// question loop when every contact field is known, otherwise collect-info
// with the missing set recorded.
func EvaluateIntake(c Contact) Intake {
	missing := c.Missing()
	if len(missing) > 0 {
		return Intake{Stage: StageCollectInfo, Missing: missing}
	}
	return Intake{Stage: StageInterview}
}

var fieldCheck = validator.New()

// ApplyMissing fills the missing fields of current from form. Every missing
// field must be present, non-empty and well-formed; otherwise nothing is
// applied and ErrIncompleteContact (or a field validation error) is returned.
// Fields that were not missing are left untouched even if the form carries
// them.
func ApplyMissing(current Contact, form ContactForm) (Contact, error) {
	missing := current.Missing()
	if len(missing) == 0 {
		return current, nil
	}
	next := current
	for _, f := range missing {
		v := form.get(f)
		val := strings.TrimSpace(v.Value)
		if !v.Present || val == "" {
			return current, ErrIncompleteContact
		}
		switch f {
		case FieldName:
			next.Name = val
		case FieldEmail:
			if err := fieldCheck.Var(val, "email"); err != nil {
				return current, domain.Invalid("email", "email is not a valid address")
			}
			next.Email = val
		case FieldPhone:
			if err := fieldCheck.Var(val, "min=7,max=32"); err != nil {
				return current, domain.Invalid("phone", "phone number has an invalid length")
			}
			next.Phone = val
		}
	}
	return next, nil
}

// StageOf derives the stage of a persisted candidate. A nil candidate has
// not submitted a résumé yet.
func StageOf(c *domain.Candidate) Stage {
	switch {
	case c == nil:
		return StageUpload
	case c.Status == domain.StatusCompleted:
		return StageCompleted
	case len(ContactOf(c).Missing()) > 0:
		return StageCollectInfo
	default:
		return StageInterview
	}
}

// ContactOf extracts the contact fields of a candidate.
func ContactOf(c *domain.Candidate) Contact {
	return Contact{Name: c.Name, Email: c.Email, Phone: c.Phone}
}
