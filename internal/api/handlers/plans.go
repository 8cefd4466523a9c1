package handlers

import (
	"net/http"

	"samedaydispatch/internal/api/dto"
	"samedaydispatch/internal/domain"
)

// PlanHandler exposes each truck's most recently committed RouteRun
// read-only: the simulator, not an HTTP request, is what builds runs
// in this domain, so there is no POST /plan the way the teacher's
// on-demand planner exposed one.
type PlanHandler struct {
	Trucks []*domain.Truck
}

// Plan answers GET /plan.
func (h *PlanHandler) Plan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	res := dto.ListPlanResponse{Plans: make([]dto.PlanResponse, 0, len(h.Trucks))}
	for _, t := range h.Trucks {
		if len(t.Runs) == 0 {
			continue
		}
		run := t.Runs[len(t.Runs)-1]

		stops := make([]dto.PlanStopResponse, 0, len(run.Stops))
		for i, loc := range run.Stops {
			stops = append(stops, dto.PlanStopResponse{
				LocationName: loc.Key.Name,
				ArriveAt:     run.ArrivalTimes[i].String(),
				PackageIDs:   run.PackageIDsAt(i),
			})
		}

		res.Plans = append(res.Plans, dto.PlanResponse{
			TruckID:    t.TruckID,
			DepartHub:  run.DepartHub.String(),
			ReturnTime: run.ReturnTime.String(),
			TotalMiles: run.TotalMiles,
			Stops:      stops,
		})
	}

	writeJSON(w, r, http.StatusOK, res)
}
