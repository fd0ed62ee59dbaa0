package domain

import "time"

// MaxCommentLength bounds a single comment body, in characters.
const MaxCommentLength = 2000

// RequestComment is a free-text note left on a request by a citizen, staff
// member or agent.
type RequestComment struct {
	ID        string
	RequestID string
	Author    Actor
	Text      string
	CreatedAt time.Time
}
