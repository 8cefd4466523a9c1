// Package config loads the fixed configuration-constant table spec.md
// §6 names via viper, following the pack's viper.SetDefault +
// viper.Get convention (shortlink-org-shop's oms_di package) rather
// than a bespoke flag/env reader.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"samedaydispatch/internal/timeutil"
)

// Constants holds every configuration value spec.md §6's table names,
// reproducible defaults included.
type Constants struct {
	NumDeliveryTrucks            int
	NumDrivers                   int
	NumTruckCapacity             int
	DeliveryTruckMPH             float64
	StandardPackageArrivalTime   timeutil.TimeOfDay
	StandardPackageLoadStartTime timeutil.TimeOfDay
	DeliveryDispatchTime         timeutil.TimeOfDay
	DeliveryReturnTime           timeutil.TimeOfDay
	PackageLoadSpeedMaxSeconds   int
	HubReturnInsertionAllowance  float64
	FillInInsertionAllowance     float64
	ClosestNeighborMinimum       int
	PackageAddressChangeTime     timeutil.TimeOfDay

	DistanceCSVPath string
	PackageCSVPath  string
	HubAddress      string
}

func setDefaults() {
	viper.SetDefault("NUM_DELIVERY_TRUCKS", 3)
	viper.SetDefault("NUM_DRIVERS", 2)
	viper.SetDefault("NUM_TRUCK_CAPACITY", 16)
	viper.SetDefault("DELIVERY_TRUCK_MPH", 18.0)
	viper.SetDefault("STANDARD_PACKAGE_ARRIVAL_TIME", "04:00")
	viper.SetDefault("STANDARD_PACKAGE_LOAD_START_TIME", "06:30")
	viper.SetDefault("DELIVERY_DISPATCH_TIME", "08:00")
	viper.SetDefault("DELIVERY_RETURN_TIME", "19:00")
	viper.SetDefault("PACKAGE_LOAD_SPEED_MAX_SECONDS", 100)
	viper.SetDefault("HUB_RETURN_INSERTION_ALLOWANCE", 2.5)
	viper.SetDefault("FILL_IN_INSERTION_ALLOWANCE", 3.0)
	viper.SetDefault("CLOSEST_NEIGHBOR_MINIMUM", 8)
	viper.SetDefault("PACKAGE_ADDRESS_CHANGE_TIME", "10:20")

	viper.SetDefault("DISTANCE_CSV_PATH", "data/distance.csv")
	viper.SetDefault("PACKAGE_CSV_PATH", "data/packages.csv")
	viper.SetDefault("HUB_ADDRESS", "")
}

// Load reads environment variables (viper.AutomaticEnv) over the
// defaults above and parses the five HH:MM fields into TimeOfDay.
func Load() (*Constants, error) {
	setDefaults()
	viper.AutomaticEnv()

	parse := func(key string) (timeutil.TimeOfDay, error) {
		raw := viper.GetString(key)
		t, err := timeutil.Parse(raw)
		if err != nil {
			return 0, fmt.Errorf("config: %s=%q: %w", key, raw, err)
		}
		return t, nil
	}

	arrival, err := parse("STANDARD_PACKAGE_ARRIVAL_TIME")
	if err != nil {
		return nil, err
	}
	loadStart, err := parse("STANDARD_PACKAGE_LOAD_START_TIME")
	if err != nil {
		return nil, err
	}
	dispatch, err := parse("DELIVERY_DISPATCH_TIME")
	if err != nil {
		return nil, err
	}
	returnTime, err := parse("DELIVERY_RETURN_TIME")
	if err != nil {
		return nil, err
	}
	addressChange, err := parse("PACKAGE_ADDRESS_CHANGE_TIME")
	if err != nil {
		return nil, err
	}

	return &Constants{
		NumDeliveryTrucks:            viper.GetInt("NUM_DELIVERY_TRUCKS"),
		NumDrivers:                   viper.GetInt("NUM_DRIVERS"),
		NumTruckCapacity:             viper.GetInt("NUM_TRUCK_CAPACITY"),
		DeliveryTruckMPH:             viper.GetFloat64("DELIVERY_TRUCK_MPH"),
		StandardPackageArrivalTime:   arrival,
		StandardPackageLoadStartTime: loadStart,
		DeliveryDispatchTime:         dispatch,
		DeliveryReturnTime:           returnTime,
		PackageLoadSpeedMaxSeconds:   viper.GetInt("PACKAGE_LOAD_SPEED_MAX_SECONDS"),
		HubReturnInsertionAllowance:  viper.GetFloat64("HUB_RETURN_INSERTION_ALLOWANCE"),
		FillInInsertionAllowance:     viper.GetFloat64("FILL_IN_INSERTION_ALLOWANCE"),
		ClosestNeighborMinimum:       viper.GetInt("CLOSEST_NEIGHBOR_MINIMUM"),
		PackageAddressChangeTime:     addressChange,
		DistanceCSVPath:              viper.GetString("DISTANCE_CSV_PATH"),
		PackageCSVPath:               viper.GetString("PACKAGE_CSV_PATH"),
		HubAddress:                   viper.GetString("HUB_ADDRESS"),
	}, nil
}

// LoadJitterBound returns the per-package load-time jitter as a
// time.Duration ceiling. The simulator does not call it; it takes
// PackageLoadSpeedMaxSeconds directly as DeliverySimulator.LoadJitterMax.
func (c *Constants) LoadJitterBound() time.Duration {
	return time.Duration(c.PackageLoadSpeedMaxSeconds) * time.Second
}
