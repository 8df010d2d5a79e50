package domain

import "strings"

// Roles a caller may hold.
const (
	RoleInterviewer = "interviewer"
	RoleInterviewee = "interviewee"
)

// Identity is the authenticated caller as resolved by the transport layer.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// Anonymous reports whether no user id was supplied.
func (i Identity) Anonymous() bool { return strings.TrimSpace(i.UserID) == "" }
