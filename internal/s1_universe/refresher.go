package s1_universe

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/logger"
)

// Refresher keeps index membership files current
type Refresher struct {
	source MemberSource
	store  contracts.IndexStore
	logger *logger.Logger
}

// NewRefresher creates a new Refresher
func NewRefresher(source MemberSource, store contracts.IndexStore, log *logger.Logger) *Refresher {
	return &Refresher{
		source: source,
		store:  store,
		logger: log.Module("universe"),
	}
}

// Refresh merges the current constituents of index into its stored membership.
//
// Surviving members are extended to day, new members enter with start=end=day
// and members that left keep their last end date.
// ⭐ SSOT: 지수 구성종목 갱신
func (r *Refresher) Refresh(ctx context.Context, index string, day time.Time) error {
	day = contracts.Day(day)

	current, err := r.source.Members(ctx, index)
	if err != nil {
		return fmt.Errorf("fetch %s members: %w", index, err)
	}
	existing, err := r.store.ReadIndex(ctx, index)
	if err != nil {
		return fmt.Errorf("read %s members: %w", index, err)
	}

	merged, added := Merge(existing, current, day)
	if err := r.store.WriteIndex(ctx, index, merged); err != nil {
		return fmt.Errorf("write %s members: %w", index, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"index":   index,
		"members": len(current),
		"added":   added,
	}).Info("Index membership refreshed")
	return nil
}

// Merge applies the current member list to existing ranges and returns the
// result along with the number of new members
func Merge(existing []contracts.Instrument, current []string, day time.Time) ([]contracts.Instrument, int) {
	byCode := make(map[string]int, len(existing))
	out := make([]contracts.Instrument, len(existing))
	copy(out, existing)
	for i, in := range out {
		byCode[in.Code] = i
	}

	added := 0
	for _, code := range current {
		if i, ok := byCode[code]; ok {
			if day.After(out[i].End) {
				out[i].End = day
			}
			continue
		}
		byCode[code] = len(out)
		out = append(out, contracts.Instrument{Code: code, Start: day, End: day})
		added++
	}
	return out, added
}
