// Package selector derives the aggregate view of a round.
package selector

import (
	"cmp"
	"slices"

	"github.com/okian/agropredict/internal/domain/model"
)

// Select is a pure function of the snapshot and does not depend on the
// order of s.Results. The best result is the successful result with the
// highest confidence; on equal confidence the lower Arrival wins. Failed
// results never participate. All is returned in arrival order.
func Select(s model.Snapshot) model.Aggregate {
	all := append([]model.ModelResult(nil), s.Results...)
	slices.SortStableFunc(all, func(a, b model.ModelResult) int {
		return cmp.Compare(a.Arrival, b.Arrival)
	})

	agg := model.Aggregate{
		RoundID:   s.RoundID,
		All:       all,
		Pending:   s.Pending(),
		Requested: len(s.Requested),
		Responded: len(s.Results),
	}

	for i := range agg.All {
		r := agg.All[i]
		if !r.OK() {
			continue
		}
		if agg.Best == nil || better(r, *agg.Best) {
			agg.Best = &agg.All[i]
		}
	}

	agg.Status = status(s, agg)
	return agg
}

func better(r, best model.ModelResult) bool {
	if r.Confidence != best.Confidence {
		return r.Confidence > best.Confidence
	}
	return r.Arrival < best.Arrival
}

func status(s model.Snapshot, agg model.Aggregate) model.AggregateStatus {
	switch {
	case s.State == model.RoundCancelled:
		return model.StatusCancelled
	case len(s.Requested) == 0:
		return model.StatusEmpty
	case agg.Best != nil:
		return model.StatusAvailable
	case len(agg.Pending) > 0:
		return model.StatusPending
	default:
		return model.StatusAllFailed
	}
}
