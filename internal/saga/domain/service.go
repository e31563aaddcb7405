package domain

import "context"

type Service interface {
	// Run drives the saga for a funded order until it completes, fails or
	// needs manual review. It resumes from the persisted state.
	Run(ctx context.Context, orderID string) (*State, error)
	Get(ctx context.Context, orderID string) (*State, error)
	ListManualReview(ctx context.Context, limit int) ([]State, error)
	// ClearManualReview lets a flagged saga run again.
	ClearManualReview(ctx context.Context, orderID string) (*State, error)
}
