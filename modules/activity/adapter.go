package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ActivityPort reads the activity feed.
type ActivityPort interface {
	Recent(ctx context.Context, limit int) (*Summary, error)
}

// ActivityAdapter implements ActivityPort using the service container.
type ActivityAdapter struct {
	container mono.ServiceContainer
}

// NewActivityAdapter creates a new ActivityAdapter.
func NewActivityAdapter(container mono.ServiceContainer) *ActivityAdapter {
	return &ActivityAdapter{container: container}
}

// Recent returns the counters and the latest limit entries.
func (a *ActivityAdapter) Recent(ctx context.Context, limit int) (*Summary, error) {
	req := RecentActivityRequest{Limit: limit}
	var resp RecentActivityResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRecentActivity,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s request failed: %w", ServiceRecentActivity, err)
	}
	return &resp.Summary, nil
}
