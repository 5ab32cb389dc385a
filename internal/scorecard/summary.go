package scorecard

import (
	"github.com/example/freight-dispatch/internal/models"
)

// minLoadsForRanking keeps drivers with a trivial sample out of the
// dashboard top list.
const minLoadsForRanking = 3

const topDriverLimit = 5

// DashboardSummary is the read-only rollup behind the dispatch dashboard.
type DashboardSummary struct {
	ActiveLoads       int      `json:"active_loads"`
	CompletedLoads    int      `json:"completed_loads"`
	OnTimePickupPct   float64  `json:"on_time_pickup_pct"`
	OnTimeDeliveryPct float64  `json:"on_time_delivery_pct"`
	AtRiskLoadIDs     []string `json:"at_risk_load_ids"`
	TopDrivers        []Entry  `json:"top_drivers"`
}

// BuildSummary computes the dashboard rollup for a window, optionally
// restricted to one driver.
func BuildSummary(loads []*models.Load, w Window, driverID string) DashboardSummary {
	var sum DashboardSummary

	filtered := loads
	if driverID != "" {
		filtered = filtered[:0:0]
		for _, l := range loads {
			if l.DriverID == driverID {
				filtered = append(filtered, l)
			}
		}
	}

	var total Stats
	for _, l := range filtered {
		if l.Active() {
			sum.ActiveLoads++
			if l.AtRisk() {
				sum.AtRiskLoadIDs = append(sum.AtRiskLoadIDs, l.ID)
			}
		}
		if counted(l, w) {
			total.add(l)
		}
	}
	sum.CompletedLoads = total.Loads
	sum.OnTimePickupPct = total.PickupPct()
	sum.OnTimeDeliveryPct = total.DeliveryPct()

	for _, e := range Rank(Summarize(filtered, w, ByDriver)) {
		if e.Stats.Loads < minLoadsForRanking {
			continue
		}
		sum.TopDrivers = append(sum.TopDrivers, e)
		if len(sum.TopDrivers) == topDriverLimit {
			break
		}
	}
	return sum
}
