package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
)

// ErrInvalidJob is returned when a job fails validation or cannot be decoded.
var ErrInvalidJob = errors.New("queue: invalid job")

// Job is one fully-resolved outbound email waiting in the queue store.
// A Job is written once and never updated; it leaves the store only when a
// drain claims it.
type Job struct {
	ID        string   `json:"id"`
	To        []string `json:"to"`
	Cc        []string `json:"cc,omitempty"`
	Bcc       []string `json:"bcc,omitempty"`
	Subject   string   `json:"subject"`
	Text      string   `json:"text"`
	HTML      string   `json:"html,omitempty"`
	From      string   `json:"from"`
	FromName  string   `json:"fromName"`
	CreatedAt int64    `json:"createdAt"` // unix milliseconds
}

// JobFields holds the caller-supplied part of a Job.
type JobFields struct {
	To       []string
	Cc       []string
	Bcc      []string
	Subject  string
	Text     string
	HTML     string
	From     string
	FromName string
}

// NewJob creates a Job with a random UUID and the current time.
func NewJob(f JobFields) *Job {
	return newJobAt(f, time.Now())
}

func newJobAt(f JobFields, now time.Time) *Job {
	return &Job{
		ID:        uuid.New().String(),
		To:        cloneStrings(f.To),
		Cc:        cloneStrings(f.Cc),
		Bcc:       cloneStrings(f.Bcc),
		Subject:   f.Subject,
		Text:      f.Text,
		HTML:      f.HTML,
		From:      f.From,
		FromName:  f.FromName,
		CreatedAt: now.UnixMilli(),
	}
}

// Created returns CreatedAt as a time.Time.
func (j *Job) Created() time.Time {
	return time.UnixMilli(j.CreatedAt)
}

// Validate checks the invariants every stored record must satisfy.
func (j *Job) Validate() error {
	err := validation.ValidateStruct(j,
		validation.Field(&j.ID, validation.Required, is.UUID),
		validation.Field(&j.To, validation.Required, validation.Each(validation.Required, is.EmailFormat)),
		validation.Field(&j.Cc, validation.Each(validation.Required, is.EmailFormat)),
		validation.Field(&j.Bcc, validation.Each(validation.Required, is.EmailFormat)),
		validation.Field(&j.Subject, validation.Required),
		validation.Field(&j.Text, validation.Required),
		validation.Field(&j.From, validation.Required, is.EmailFormat),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return nil
}

// Encode serializes the job for the store.
func (j *Job) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	return data, nil
}

// DecodeJob parses a stored record.
func DecodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if j.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	return &j, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
