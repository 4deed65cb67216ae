package model

import "time"

// PendingExam is the write-ahead marker stored when an exam is realized.
type PendingExam struct {
	StudentID    string    `json:"student_id"`
	ExamID       string    `json:"exam_id"`
	SerialNumber int64     `json:"serial_number"`
	RealizedAt   time.Time `json:"realized_at"`
}

// StartSessionRequest is the payload for creating or resuming a session.
type StartSessionRequest struct {
	TemplateRef string `json:"template_ref" binding:"omitempty,max=128"`
}

// NavigateRequest moves the session to an item.
type NavigateRequest struct {
	Section int `json:"section" binding:"min=0"`
	Item    int `json:"item" binding:"min=0"`
}

// AnswerRequest records an answer for the current item.
type AnswerRequest struct {
	Section int    `json:"section" binding:"min=0"`
	Item    int    `json:"item" binding:"min=0"`
	Answer  string `json:"answer" binding:"required,max=4096"`
}

// ConfirmSubmitRequest answers the submit confirmation prompt.
type ConfirmSubmitRequest struct {
	Confirm *bool `json:"confirm" binding:"required"`
}

// OverrideRequest carries the reason for an administrative override.
type OverrideRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=512"`
}

// ReleaseRequest redeems the cleanup code handed out on close.
type ReleaseRequest struct {
	Code string `json:"code" binding:"required,uuid"`
}
