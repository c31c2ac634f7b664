package support

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

func person(id int, x float64) counter.Detection {
	return counter.Detection{
		TrackID:    &id,
		Box:        counter.Box{X1: x - 10, Y1: 0, X2: x + 10, Y2: 10},
		Confidence: 0.9,
	}
}

func (tc *TestContext) aFramePixelsWide(w int) error {
	tc.Width = w
	return nil
}

func (tc *TestContext) theCountingLineAt(fraction float64) error {
	tc.LineFraction = fraction
	return nil
}

func (tc *TestContext) aCooldownOfMilliseconds(ms int) error {
	tc.Cooldown = time.Duration(ms) * time.Millisecond
	return nil
}

func (tc *TestContext) swappedLabels() error {
	tc.Swap = true
	return nil
}

func (tc *TestContext) personIsSeenAt(id int, x float64) error {
	_, err := tc.processFrame(person(id, x))
	return err
}

func (tc *TestContext) personWalksFromTo(id int, from, to float64) error {
	if err := tc.personIsSeenAt(id, from); err != nil {
		return err
	}
	return tc.personIsSeenAt(id, to)
}

func (tc *TestContext) personsWalkTogether(a, b int, from, to float64) error {
	if _, err := tc.processFrame(person(a, from), person(b, from+5)); err != nil {
		return err
	}
	_, err := tc.processFrame(person(a, to), person(b, to+5))
	return err
}

func (tc *TestContext) anUnconfirmedPersonWalksFromTo(from, to float64) error {
	for _, x := range []float64{from, to} {
		d := person(0, x)
		d.TrackID = nil
		if _, err := tc.processFrame(d); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TestContext) anEmptyFrameIsProcessed() error {
	_, err := tc.processFrame()
	return err
}

func (tc *TestContext) millisecondsPass(ms int) error {
	tc.Clock.Add(time.Duration(ms) * time.Millisecond)
	return nil
}

func (tc *TestContext) theCommandIsIssued(name string) error {
	c, err := tc.counter()
	if err != nil {
		return err
	}
	switch name {
	case "reset":
		return c.Reset()
	case "swap":
		return c.ToggleSwap()
	case "quit":
		return c.Quit()
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (tc *TestContext) theCameraStopsDelivering() error {
	if _, err := tc.counter(); err != nil {
		return err
	}
	tc.Source.Finish()
	return nil
}

func (tc *TestContext) theCountingLoopRuns() error {
	c, err := tc.counter()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tc.LastRunErr = c.Run(ctx)
	return nil
}

func (tc *TestContext) snapshot() (ledger.Snapshot, error) {
	c, err := tc.counter()
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

func (tc *TestContext) theCountsShouldBe(in, out, occupancy int) error {
	s, err := tc.snapshot()
	if err != nil {
		return err
	}
	if s.In != in || s.Out != out || s.Occupancy != occupancy {
		return fmt.Errorf("expected IN=%d OUT=%d occupancy=%d, got IN=%d OUT=%d occupancy=%d",
			in, out, occupancy, s.In, s.Out, s.Occupancy)
	}
	return nil
}

func (tc *TestContext) swapShouldBe(state string) error {
	s, err := tc.snapshot()
	if err != nil {
		return err
	}
	if want := state == "on"; s.Swap != want {
		return fmt.Errorf("expected swap %s, got %v", state, s.Swap)
	}
	return nil
}

func (tc *TestContext) crossingsShouldHaveBeenPublished(n int) error {
	tc.Sink.mu.Lock()
	defer tc.Sink.mu.Unlock()
	if len(tc.Sink.Crossings) != n {
		return fmt.Errorf("expected %d published crossings, got %d", n, len(tc.Sink.Crossings))
	}
	return nil
}

func (tc *TestContext) theLastPublishedCrossingShouldBe(label string, occupancy int) error {
	tc.Sink.mu.Lock()
	defer tc.Sink.mu.Unlock()
	if len(tc.Sink.Crossings) == 0 {
		return fmt.Errorf("no crossings published")
	}
	last := tc.Sink.Crossings[len(tc.Sink.Crossings)-1]
	if string(last.Label) != label || last.Occupancy != occupancy {
		return fmt.Errorf("expected %s with occupancy %d, got %s with occupancy %d",
			label, occupancy, last.Label, last.Occupancy)
	}
	return nil
}

func (tc *TestContext) theLoopShouldHaveStoppedCleanly() error {
	if tc.LastRunErr != nil {
		return fmt.Errorf("expected clean stop, got %w", tc.LastRunErr)
	}
	if !tc.Source.Closed() {
		return fmt.Errorf("frame source was not closed")
	}
	tc.Sink.mu.Lock()
	defer tc.Sink.mu.Unlock()
	if !tc.Sink.Closed {
		return fmt.Errorf("sink was not closed")
	}
	return nil
}

func (tc *TestContext) theFinalFlushShouldRecord(in, out, occupancy int) error {
	tc.Sink.mu.Lock()
	defer tc.Sink.mu.Unlock()
	if len(tc.Sink.Flushes) == 0 {
		return fmt.Errorf("no durable flush recorded")
	}
	s := tc.Sink.Flushes[len(tc.Sink.Flushes)-1]
	if s.In != in || s.Out != out || s.Occupancy != occupancy {
		return fmt.Errorf("final flush IN=%d OUT=%d occupancy=%d, want IN=%d OUT=%d occupancy=%d",
			s.In, s.Out, s.Occupancy, in, out, occupancy)
	}
	return nil
}

// RegisterCountingSteps registers all counting step definitions.
func (tc *TestContext) RegisterCountingSteps(sc *godog.ScenarioContext) {
	// Setup
	sc.Step(`^a camera frame (\d+) pixels wide$`, tc.aFramePixelsWide)
	sc.Step(`^the counting line at ([0-9.]+) of the frame width$`, tc.theCountingLineAt)
	sc.Step(`^a cooldown of (\d+) milliseconds$`, tc.aCooldownOfMilliseconds)
	sc.Step(`^IN and OUT labels are swapped$`, tc.swappedLabels)

	// Frames
	sc.Step(`^person (\d+) is seen at x ([0-9.]+)$`, tc.personIsSeenAt)
	sc.Step(`^person (\d+) walks from x ([0-9.]+) to x ([0-9.]+)$`, tc.personWalksFromTo)
	sc.Step(`^persons (\d+) and (\d+) walk together from x ([0-9.]+) to x ([0-9.]+)$`, tc.personsWalkTogether)
	sc.Step(`^an unconfirmed person walks from x ([0-9.]+) to x ([0-9.]+)$`, tc.anUnconfirmedPersonWalksFromTo)
	sc.Step(`^an empty frame is processed$`, tc.anEmptyFrameIsProcessed)
	sc.Step(`^(\d+) milliseconds pass$`, tc.millisecondsPass)

	// Commands and lifecycle
	sc.Step(`^the (reset|swap|quit) command is issued$`, tc.theCommandIsIssued)
	sc.Step(`^the camera stops delivering frames$`, tc.theCameraStopsDelivering)
	sc.Step(`^the counting loop runs$`, tc.theCountingLoopRuns)

	// Assertions
	sc.Step(`^the counts should be IN (\d+), OUT (\d+), occupancy (\d+)$`, tc.theCountsShouldBe)
	sc.Step(`^swap should be (on|off)$`, tc.swapShouldBe)
	sc.Step(`^(\d+) crossings? should have been published$`, tc.crossingsShouldHaveBeenPublished)
	sc.Step(`^the last published crossing should be (IN|OUT) with occupancy (\d+)$`, tc.theLastPublishedCrossingShouldBe)
	sc.Step(`^the loop should have stopped cleanly$`, tc.theLoopShouldHaveStoppedCleanly)
	sc.Step(`^the final flush should record IN (\d+), OUT (\d+), occupancy (\d+)$`, tc.theFinalFlushShouldRecord)
}
