package services

import (
	"context"
	"log"
	"math/rand"

	"samedaydispatch/internal/domain"
	"samedaydispatch/internal/platform/obs"
	"samedaydispatch/internal/ports"
	"samedaydispatch/internal/timeutil"
)

// sideEffect is one fire-and-forget observation the tick loop hands
// off to the background drain goroutine, so writing a snapshot or
// bumping a metric never blocks the single-goroutine clock —
// grounded on the teacher's bounded worker-pool pattern in
// plan_deliveries.go (a `chan struct{}` semaphore gating a fan-out of
// goroutines), adapted here to a single drain goroutine reading off a
// buffered channel instead of fanning out per-call.
type sideEffect struct {
	packageID int
	at        timeutil.TimeOfDay
	snap      domain.StatusSnapshot
	truckID   int
	miles     float64
	delivery  bool
	late      bool
}

// DeliverySimulator drives a single-threaded, deterministic, 1-second
// tick clock over a fleet of trucks and a PackageStore, dispatching
// scheduled status-update events (delayed hub arrivals, address
// corrections) at the times PackageStore.ExpectedUpdateTimes names.
type DeliverySimulator struct {
	Store   *domain.PackageStore
	Trucks  []*domain.Truck
	Builder *RouteBuilder
	Clock   timeutil.Clock

	DispatchTime      timeutil.TimeOfDay
	ReturnTime        timeutil.TimeOfDay
	AddressChangeTime timeutil.TimeOfDay
	ResolveAddress    func(p *domain.Package) (domain.LocationKey, bool)

	// LoadStartTime/LoadJitterMax drive the Initial Load phase, spec
	// §4.8: packages physically loaded onto trucks before dispatch,
	// each after a seeded jitter delay in [weight, LoadJitterMax]
	// seconds. Seed makes that jitter reproducible run to run.
	LoadStartTime timeutil.TimeOfDay
	LoadJitterMax int
	Seed          int64

	Sink    ports.SnapshotSink
	Metrics ports.MetricsSink

	effects chan sideEffect
	current timeutil.TimeOfDay
	signals []*domain.RunSignal
}

// NewDeliverySimulator builds a simulator ready to Run.
func NewDeliverySimulator(store *domain.PackageStore, trucks []*domain.Truck, builder *RouteBuilder, clock timeutil.Clock) *DeliverySimulator {
	return &DeliverySimulator{
		Store:   store,
		Trucks:  trucks,
		Builder: builder,
		Clock:   clock,
		effects: make(chan sideEffect, 256),
	}
}

// Run advances the clock one second at a time from DispatchTime to
// ReturnTime, building and committing a route for every idle truck at
// dispatch, applying expected status updates as they come due, and
// delivering packages as each truck's committed run reaches them. It
// returns every RunSignal raised along the way (OptimalHubReturn,
// DelayedPackagesArrived, AddressUpdate) for the caller to report.
func (s *DeliverySimulator) Run(ctx context.Context) (signals []*domain.RunSignal, err error) {
	defer obs.Time(ctx, "DeliverySimulator.Run")(&err)

	drainDone := make(chan struct{})
	go s.drain(ctx, drainDone)
	defer func() {
		close(s.effects)
		<-drainDone
	}()

	s.initialLoad()

	s.current = s.DispatchTime
	updateTimes := s.Store.ExpectedUpdateTimes([]timeutil.TimeOfDay{s.AddressChangeTime}, s.DispatchTime, s.ReturnTime)
	nextUpdateIdx := 0

	if err := s.dispatchIdleTrucks(ctx); err != nil {
		return s.signals, err
	}

	for s.current <= s.ReturnTime {
		for nextUpdateIdx < len(updateTimes) && updateTimes[nextUpdateIdx] <= s.current {
			s.applyStatusUpdate()
			nextUpdateIdx++
		}

		s.deliverDueStops()

		if err := s.dispatchIdleTrucks(ctx); err != nil {
			return s.signals, err
		}

		s.effects <- sideEffect{delivery: false, truckID: 0, miles: 0}
		if s.Metrics != nil {
			s.Metrics.ObserveTick(s.current)
		}

		s.current = s.current.Add(1)
	}

	return s.signals, nil
}

// initialLoad simulates the warehouse crew physically loading every
// package already AT_HUB onto its truck before dispatch, spec §4.8: in
// package-id order, each package's load completes between its own
// weight and LoadJitterMax seconds after the previous one, sampled from
// a random source seeded by Seed so a given day's run reproduces
// identically. A package still ON_ROUTE_TO_DEPOT is not
// yet at the hub to load, so it is deferred — it joins the simulation
// normally once BulkStatusUpdate promotes it to AT_HUB.
func (s *DeliverySimulator) initialLoad() {
	if s.LoadStartTime == 0 {
		return
	}
	rng := rand.New(rand.NewSource(s.Seed))
	clock := s.LoadStartTime

	for _, p := range s.Store.All() {
		if p.Status != domain.AtHub {
			continue
		}
		lo := p.WeightKilos
		hi := s.LoadJitterMax
		if hi < lo {
			hi = lo
		}
		jitter := lo
		if span := hi - lo; span > 0 {
			jitter += rng.Intn(span + 1)
		}
		clock = clock.Add(jitter)

		p.Status = domain.Loaded
		p.RecordStatus(clock, domain.StatusSnapshot{
			Status:            domain.Loaded,
			Location:          p.Location,
			IsVerifiedAddress: p.IsVerifiedAddress,
			SpecialNote:       p.SpecialNote,
		})
	}
}

// dispatchIdleTrucks builds and commits a run for every truck not
// currently mid-route, via RouteBuilder + RunPlanner. Packages that
// didn't make it into any truck's pool are offered to FillIn as spare
// capacity opens up.
func (s *DeliverySimulator) dispatchIdleTrucks(ctx context.Context) (err error) {
	defer obs.Time(ctx, "DeliverySimulator.dispatchIdleTrucks")(&err)

	var idle []*domain.Truck
	for _, t := range s.Trucks {
		if !t.Dispatched {
			idle = append(idle, t)
		}
	}
	if len(idle) == 0 {
		return nil
	}

	assignments, err := s.Builder.BuildAssignments(ctx, idle, s.current)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}

	pooled := map[int]bool{}
	for _, a := range assignments {
		for _, p := range a.Pool {
			pooled[p.ID] = true
		}
	}
	var leftover []*domain.Package
	for _, p := range s.Store.Available(s.current, true) {
		if !pooled[p.ID] {
			leftover = append(leftover, p)
		}
	}

	runs, errs := s.Builder.BuildRuns(ctx, assignments, s.current, leftover)
	for _, e := range errs {
		log.Printf("simulator: dispatch error: %v", e)
	}

	for _, run := range runs {
		var truck *domain.Truck
		for _, a := range assignments {
			if a.Truck.TruckID == run.TruckID {
				truck = a.Truck
				break
			}
		}
		if truck == nil {
			continue
		}
		truck.Dispatch(s.current)
		truck.Runs = append(truck.Runs, run)
		if run.Signal != nil {
			s.signals = append(s.signals, run.Signal)
		}
	}
	return nil
}

// deliverDueStops marks every package delivered whose truck has
// reached that stop's arrival time in its active run.
func (s *DeliverySimulator) deliverDueStops() {
	for _, t := range s.Trucks {
		if !t.Dispatched || len(t.Runs) == 0 {
			continue
		}
		run := t.Runs[len(t.Runs)-1]
		for i, arrival := range run.ArrivalTimes {
			if arrival > s.current {
				continue
			}
			for _, id := range run.Analysis[i].PackageIDs {
				p, ok := s.Store.ByID(id)
				if !ok || p.Status == domain.Delivered {
					continue
				}
				p.Deliver(s.current)
				late := p.Deadline != 0 && s.current.After(p.Deadline)
				snap := domain.StatusSnapshot{Status: p.Status, Location: p.Location, IsVerifiedAddress: p.IsVerifiedAddress, SpecialNote: p.SpecialNote}
				s.effects <- sideEffect{packageID: id, at: s.current, snap: snap, delivery: true, truckID: t.TruckID, late: late}
			}
		}
		if s.current >= run.ReturnTime {
			t.CommitRun(run, s.Builder.Store.Graph.Hub().Key)
			s.effects <- sideEffect{truckID: t.TruckID, miles: run.TotalMiles}
		}
	}
}

// applyStatusUpdate runs one bulk status pass over the PackageStore,
// recording any resulting RunSignal.
func (s *DeliverySimulator) applyStatusUpdate() {
	arrived, addressUpdated := s.Store.BulkStatusUpdate(s.current, s.AddressChangeTime, s.resolver())
	if arrived {
		s.signals = append(s.signals, &domain.RunSignal{Kind: domain.DelayedPackagesArrived})
	}
	if addressUpdated {
		s.signals = append(s.signals, &domain.RunSignal{Kind: domain.AddressUpdate})
	}
}

func (s *DeliverySimulator) resolver() func(p *domain.Package) (domain.LocationKey, bool) {
	if s.ResolveAddress != nil {
		return s.ResolveAddress
	}
	return func(p *domain.Package) (domain.LocationKey, bool) { return p.Location, true }
}

// drain reads side effects off the channel and forwards them to the
// sink/metrics ports, never touching simulator state directly — this
// is the sole consumer of s.effects, decoupled from the tick loop's
// timing.
func (s *DeliverySimulator) drain(ctx context.Context, done chan struct{}) {
	defer close(done)
	for e := range s.effects {
		if e.delivery && s.Sink != nil {
			if err := s.Sink.WriteSnapshot(ctx, e.packageID, e.at, e.snap); err != nil {
				log.Printf("simulator: snapshot sink error: %v", err)
			}
		}
		if s.Metrics == nil {
			continue
		}
		if e.delivery {
			s.Metrics.ObserveDelivery(e.truckID, e.late)
		}
		if e.miles > 0 {
			s.Metrics.ObserveMileage(e.truckID, e.miles)
		}
	}
}
