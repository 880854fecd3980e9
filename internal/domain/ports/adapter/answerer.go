package adapter

import "context"

// Question is one request to the external AI answer pipeline.
type Question struct {
	UserID  string
	Text    string
	Sources []string // content sources the caller's plan may draw on
}

// Answer is what the pipeline returned.
type Answer struct {
	Text      string
	Citations []string
}

// Answerer is the port for the retrieval-augmented answer pipeline. The
// entitlement core never implements it; it only meters calls into it.
type Answerer interface {
	Answer(ctx context.Context, q Question) (Answer, error)
}
