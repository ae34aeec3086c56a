package funnel

import (
	"context"
	"fmt"

	"vcfunnel/internal/query"
)

// DeepMetrics computes the three derived ratio metrics for the window.
func (a *Analyzer) DeepMetrics(ctx context.Context, w query.Window) (DeepMetrics, error) {
	var metrics DeepMetrics

	save, err := a.singleEventMetric(ctx, w, EventSaveSuccess)
	if err != nil {
		return metrics, err
	}

	exposure, err := a.singleEventMetric(ctx, w, EventExposure)
	if err != nil {
		return metrics, err
	}

	// Completion counts every saver, whether or not the exposure set contains
	// them within the same window.
	metrics.Completion = CompletionMetric{
		ExposureUsers: exposure.Users,
		SaveUsers:     save.Users,
		Rate:          Rate(save.Users, exposure.Users),
	}

	use, err := a.singleEventMetric(ctx, w, EventSaveVoiceUse)
	if err != nil {
		return metrics, err
	}
	metrics.SaveToUse = SaveToUseMetric{
		SaveUsers:   save.Users,
		SaveCount:   save.Count,
		UseTTSUsers: use.Users,
		UseTTSCount: use.Count,
		UserRate:    Rate(use.Users, save.Users),
		CountRate:   Rate(use.Count, save.Count),
	}

	upgrade, err := a.upgradeConversion(ctx, w)
	if err != nil {
		return metrics, err
	}
	metrics.UpgradeConversion = upgrade

	return metrics, nil
}

// upgradeConversion intersects the upgrade-click user set with the purchase
// user set. Aggregate counts cannot answer this; a user must literally appear
// in both populations.
func (a *Analyzer) upgradeConversion(ctx context.Context, w query.Window) (UpgradeMetric, error) {
	clickers, err := a.store.UserIDs(ctx, w, []string{EventUpgradeClick})
	if err != nil {
		return UpgradeMetric{}, fmt.Errorf("failed to fetch upgrade-click users: %w", err)
	}

	payers, err := a.store.UserIDs(ctx, w, purchaseEvents)
	if err != nil {
		return UpgradeMetric{}, fmt.Errorf("failed to fetch purchase users: %w", err)
	}

	paid := make(map[string]struct{}, len(payers))
	for _, id := range payers {
		paid[id] = struct{}{}
	}

	var both int64
	seen := make(map[string]struct{}, len(clickers))
	for _, id := range clickers {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := paid[id]; ok {
			both++
		}
	}

	clickUsers := int64(len(seen))
	return UpgradeMetric{
		UpgradeClickUsers:   clickUsers,
		UpgradeAndPaidUsers: both,
		Rate:                Rate(both, clickUsers),
	}, nil
}
