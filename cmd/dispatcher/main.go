package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	adaptercsv "samedaydispatch/internal/adapters/csv"
	"samedaydispatch/internal/cli"
	"samedaydispatch/internal/config"
	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/services"
	"samedaydispatch/internal/timeutil"
)

var (
	noInteractive bool
	distanceCSV   string
	packageCSV    string
	seed          int64
)

var rootCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Runs a same-day delivery simulation and opens the status menu",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func main() {
	rootCmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "run the simulation and print its log without the menu (no end-of-day summary is printed)")
	rootCmd.Flags().StringVar(&distanceCSV, "distance-csv", "", "override the configured distance-grid CSV path")
	rootCmd.Flags().StringVar(&packageCSV, "package-csv", "", "override the configured package-manifest CSV path")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "seed for the Initial Load phase's jitter sampling")
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("run: load config: %w", err)
	}
	if distanceCSV != "" {
		cfg.DistanceCSVPath = distanceCSV
	}
	if packageCSV != "" {
		cfg.PackageCSVPath = packageCSV
	}

	var logBuf bytes.Buffer
	log.SetOutput(&logBuf)

	graphLoader := adaptercsv.NewGridGraphLoader(cfg.DistanceCSVPath)
	graph, err := graphLoader.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("run: load distance graph: %w", err)
	}

	pkgLoader := adaptercsv.NewPackageLoader(cfg.PackageCSVPath, cfg.StandardPackageArrivalTime)
	pkgs, err := pkgLoader.LoadPackages(ctx, graph)
	if err != nil {
		return fmt.Errorf("run: load packages: %w", err)
	}

	store := domain.NewPackageStore(graph, cfg.NumTruckCapacity)
	for _, p := range pkgs {
		store.Add(p)
	}
	for id, peers := range pkgLoader.Bundles(pkgs) {
		for _, peerID := range peers {
			store.Bundle(id, peerID)
		}
	}

	clock := timeutil.Clock{MPH: cfg.DeliveryTruckMPH}
	hub := graph.Hub().Key

	trucks := make([]*domain.Truck, cfg.NumDeliveryTrucks)
	for i := range trucks {
		trucks[i] = domain.NewTruck(i+1, cfg.NumTruckCapacity, cfg.DeliveryTruckMPH, hub)
	}

	planner := &services.RunPlanner{
		Graph:                   graph,
		Clock:                   clock,
		Store:                   store,
		FillInAllowance:         cfg.FillInInsertionAllowance,
		HubReturnAllowance:      cfg.HubReturnInsertionAllowance,
		ClosestNeighborMinimum:  cfg.ClosestNeighborMinimum,
		RevisitThresholdMiles:   2.0,
		FillInDelayedRadius:     0.75,
		FillInOtherTruckRadius:  0.75,
		FillInUnconfirmedRadius: 3.0,
	}
	builder := &services.RouteBuilder{Store: store, Planner: planner}

	sim := services.NewDeliverySimulator(store, trucks, builder, clock)
	sim.DispatchTime = cfg.DeliveryDispatchTime
	sim.ReturnTime = cfg.DeliveryReturnTime
	sim.AddressChangeTime = cfg.PackageAddressChangeTime
	sim.LoadStartTime = cfg.StandardPackageLoadStartTime
	sim.LoadJitterMax = cfg.PackageLoadSpeedMaxSeconds
	sim.Seed = seed

	signals, err := sim.Run(ctx)
	if err != nil {
		log.Printf("simulation ended with error: %v", err)
	}
	for _, s := range signals {
		log.Print(s.String())
	}

	logLines := strings.Split(strings.TrimRight(logBuf.String(), "\n"), "\n")

	menu := cli.NewMenu(store, trucks, logLines)
	if noInteractive {
		fmt.Println(strings.Join(logLines, "\n"))
		return nil
	}

	os.Exit(menu.Run(os.Stdin, os.Stdout))
	return nil
}
