package domain

import "strings"

// Role is the kind of actor calling the gateway.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleCompany Role = "company"
)

// TargetKind is the kind of record an actor follows or contacts.
type TargetKind string

const (
	TargetJob    TargetKind = "job"
	TargetResume TargetKind = "resume"
)

// ParseRole validates a role string. Unknown roles are a client error,
// never a silent default.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleTeacher:
		return RoleTeacher, nil
	case RoleCompany:
		return RoleCompany, nil
	default:
		return "", ClientError("invalid role").WithData("role", s)
	}
}

// Target returns the record kind this role tracks: companies track
// resumes, teachers track jobs.
func (r Role) Target() TargetKind {
	if r == RoleCompany {
		return TargetResume
	}
	return TargetJob
}

// IDField is the JSON field carrying a target's identity in backend payloads.
func (t TargetKind) IDField() string {
	return string(t) + "_id"
}

// Relation is an actor's tie to a target record.
type Relation string

const (
	RelationFollow  Relation = "follow"
	RelationContact Relation = "contact"
)

// ParseRelation validates a relation path segment.
func ParseRelation(s string) (Relation, error) {
	switch Relation(strings.ToLower(s)) {
	case RelationFollow:
		return RelationFollow, nil
	case RelationContact:
		return RelationContact, nil
	default:
		return "", ClientError("invalid relation").WithData("relation", s)
	}
}

// Flag is the boolean field set on annotated records: followed or contacted.
func (r Relation) Flag() string {
	return string(r) + "ed"
}
