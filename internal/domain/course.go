package domain

import "time"

// Course mirrors one Canvas course for one user.
// (UserID, CanvasCourseID) is unique.
type Course struct {
	ID             int64
	UserID         int64
	CanvasCourseID string
	Name           string
	Code           string
	Active         bool
	CreatedAt      time.Time // UTC
}
