// Package history is the read-only reporting view over a contributor's
// subscriptions.
package history

import (
	"context"
	"fmt"

	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/repository"
)

type HistoryService struct {
	subscriptions repository.SubscriptionRepository
}

func NewHistoryService(subscriptions repository.SubscriptionRepository) *HistoryService {
	return &HistoryService{subscriptions: subscriptions}
}

// GetHistory returns one page of the contributor's subscriptions, newest
// first. EXPIRED records are hidden unless requested.
func (s *HistoryService) GetHistory(ctx context.Context, contributorID string, filters subscription.SubscriptionListFilters) (*subscription.SubscriptionListResponse, error) {
	filters.Normalize()

	subs, total, err := s.subscriptions.List(ctx, contributorID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	totalPages := int(total) / filters.Limit
	if int(total)%filters.Limit > 0 {
		totalPages++
	}

	return &subscription.SubscriptionListResponse{
		Subscriptions: subs,
		Total:         total,
		Page:          filters.Page,
		Limit:         filters.Limit,
		TotalPages:    totalPages,
	}, nil
}

// GetStats aggregates counts per status and the amount spent on paid
// subscriptions.
func (s *HistoryService) GetStats(ctx context.Context, contributorID string) (*subscription.SubscriptionStats, error) {
	stats, err := s.subscriptions.GetStats(ctx, contributorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription stats: %w", err)
	}
	return stats, nil
}
