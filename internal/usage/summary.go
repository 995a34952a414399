package usage

import (
	"time"

	"github.com/and161185/gatekeeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Summarize folds records into a summary. It keeps no state and can be
// replayed over any slice of the usage log.
func Summarize(clientID uuid.UUID, from, to time.Time, recs []model.UsageRecord) model.UsageSummary {
	s := model.UsageSummary{
		ClientID:    clientID,
		From:        from,
		To:          to,
		PerEndpoint: make(map[string]int),
	}
	var total time.Duration
	for _, r := range recs {
		s.TotalRequests++
		if r.Succeeded() {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
		s.PerEndpoint[r.Method+" "+r.Endpoint]++
		total += r.Duration
	}
	if s.TotalRequests > 0 {
		s.AverageResponseTime = total / time.Duration(s.TotalRequests)
	}
	return s
}
