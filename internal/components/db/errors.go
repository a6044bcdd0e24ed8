package db

import (
	"strings"
)

// Constraint is the kind of constraint a failed write ran into.
type Constraint int

const (
	ConstraintNone Constraint = iota
	ConstraintUnique
	ConstraintCheck
	ConstraintNotNull
	ConstraintForeignKey
	// ConstraintTeamRecordLimit is raised by the triggers guarding the amount
	// of team records a match can have.
	ConstraintTeamRecordLimit
)

func (c Constraint) String() string {
	switch c {
	case ConstraintUnique:
		return "unique"
	case ConstraintCheck:
		return "check"
	case ConstraintNotNull:
		return "not null"
	case ConstraintForeignKey:
		return "foreign key"
	case ConstraintTeamRecordLimit:
		return "team record limit"
	default:
		return "none"
	}
}

// ConstraintOf classifies an error returned by the store. Both the local
// sqlite driver and the remote libsql client surface sqlite's own error text,
// so the message is what is matched on.
func ConstraintOf(err error) Constraint {
	if err == nil {
		return ConstraintNone
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "team_match_record_limit"):
		return ConstraintTeamRecordLimit
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ConstraintUnique
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return ConstraintNotNull
	case strings.Contains(msg, "CHECK constraint failed"):
		return ConstraintCheck
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ConstraintForeignKey
	}
	return ConstraintNone
}
