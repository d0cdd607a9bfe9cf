// Package pipeline delivers validated enquiries: each job is queued, its captcha verified, and the
// enquiry posted to the CRM by a background worker.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"enquiry-socket/internal/enquiry/domain"
)

// State is a job's position in the delivery lifecycle:
//
//	queued -> verifying_captcha -> captcha_rejected
//	                            -> captcha_accepted -> posting_enquiry -> posted | post_failed
//	queued -> post_failed when the job's company can no longer be resolved
type State string

const (
	StateQueued           State = "queued"
	StateVerifyingCaptcha State = "verifying_captcha"
	StateCaptchaRejected  State = "captcha_rejected"
	StateCaptchaAccepted  State = "captcha_accepted"
	StatePostingEnquiry   State = "posting_enquiry"
	StatePosted           State = "posted"
	StatePostFailed       State = "post_failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateCaptchaRejected || s == StatePosted || s == StatePostFailed
}

// Job is one validated enquiry waiting for delivery. It carries the company's public key, never its
// private key; workers resolve the company themselves.
type Job struct {
	ID               string                     `json:"id"`
	CompanyID        string                     `json:"company_id"`
	CompanyPublicKey string                     `json:"company_public_key"`
	Submission       domain.ValidatedSubmission `json:"submission"`
	EnqueuedAt       time.Time                  `json:"enqueued_at"`
}

// NewJob returns a job with a fresh id.
func NewJob(companyID, publicKey string, sub domain.ValidatedSubmission) Job {
	return Job{
		ID:               uuid.New().String(),
		CompanyID:        companyID,
		CompanyPublicKey: publicKey,
		Submission:       sub,
		EnqueuedAt:       time.Now().UTC(),
	}
}

// JobHandle identifies an enqueued job. Lane is -1 when the queue does not assign lanes itself.
type JobHandle struct {
	ID   string
	Lane int
}
