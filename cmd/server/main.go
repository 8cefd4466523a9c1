package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	adaptercsv "samedaydispatch/internal/adapters/csv"
	"samedaydispatch/internal/adapters/repositories"
	"samedaydispatch/internal/api"
	"samedaydispatch/internal/config"
	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/metrics"
	"samedaydispatch/internal/services"
	"samedaydispatch/internal/timeutil"
)

// main is the application composition root. It builds the day's
// distance graph and package set from the configured CSVs, runs the
// simulation once to completion (the simulation is pure-functional
// given its inputs, spec.md §6), and serves the resulting state
// read-only over HTTP.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := openDB("data/app.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := repositories.InitSchema(db); err != nil {
		log.Fatal(err)
	}
	sink := repositories.NewSqlitePackageSnapshotSink(db)

	ctx := context.Background()
	store, trucks, err := buildAndSimulate(ctx, cfg, sink)
	if err != nil {
		log.Fatal(err)
	}

	router := api.NewRouter(store, trucks)

	port := "8080"
	log.Printf("Server listening addr=:%s", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func buildAndSimulate(ctx context.Context, cfg *config.Constants, sink *repositories.SqlitePackageSnapshotSink) (*domain.PackageStore, []*domain.Truck, error) {
	graphLoader := adaptercsv.NewGridGraphLoader(cfg.DistanceCSVPath)
	graph, err := graphLoader.LoadGraph(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("build and simulate: load distance graph: %w", err)
	}

	pkgLoader := adaptercsv.NewPackageLoader(cfg.PackageCSVPath, cfg.StandardPackageArrivalTime)
	pkgs, err := pkgLoader.LoadPackages(ctx, graph)
	if err != nil {
		return nil, nil, fmt.Errorf("build and simulate: load packages: %w", err)
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
	sim.Sink = sink
	sim.Metrics = metrics.NewSink()

	if _, err := sim.Run(ctx); err != nil {
		log.Printf("simulation ended with error: %v", err)
	}

	return store, trucks, nil
}

func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("openDB: open sqlite database %q: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("openDB: verify sqlite connection to %q: %w", dbPath, err)
	}

	return db, nil
}
