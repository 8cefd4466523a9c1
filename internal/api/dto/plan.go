package dto

// PlanStopResponse is one stop of a truck's currently committed
// RouteRun, as read from whatever run is in progress at request time.
type PlanStopResponse struct {
	LocationName string `json:"location_name"`
	ArriveAt     string `json:"arrive_at"`
	PackageIDs   []int  `json:"package_ids"`
}

type PlanResponse struct {
	TruckID    int                `json:"truck_id"`
	DepartHub  string             `json:"depart_hub"`
	ReturnTime string             `json:"return_time"`
	TotalMiles float64            `json:"total_miles"`
	Stops      []PlanStopResponse `json:"stops"`
}

type ListPlanResponse struct {
	Plans []PlanResponse `json:"plans"`
}
