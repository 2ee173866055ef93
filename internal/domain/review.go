package domain

import "time"

// ReviewLog records a single grading event for a card.
type ReviewLog struct {
	CardID     string
	Grade      Grade
	ReviewedAt time.Time
}
