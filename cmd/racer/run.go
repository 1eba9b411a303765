package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/internal/handlers"
	"github.com/poppop/racer/internal/scheduler"
	"github.com/poppop/racer/internal/view"
)

// frameInterval is how often the terminal view redraws.
const frameInterval = 33 * time.Millisecond

// runRace drives one race in real time with the internal scheduler. With the
// view enabled the finished race stays on screen until the user quits.
func runRace(ctx context.Context, withView bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(config.GetRaceConfig().TickRate, nil)

	var (
		v        *view.View
		viewDone chan struct{}
	)
	if withView {
		var err error
		v, err = view.NewTerminal()
		if err != nil {
			Logger.Error("Failed to open terminal view, continuing without it", "error", err)
		} else {
			viewDone = make(chan struct{})
			go func() {
				defer close(viewDone)
				if err := v.Run(ctx, currentFrame, frameInterval); err == nil {
					// user quit
					cancel()
				}
			}()
		}
	}

	closeView := func() {
		if v == nil {
			return
		}
		cancel()
		<-viewDone
		v.Close()
		v = nil
	}
	defer closeView()

	raceID, err := handlerService.Start(nil, sched.Now())
	if err != nil {
		return err
	}
	Logger.Info("Race running", "raceId", raceID, "tickRate", config.GetRaceConfig().TickRate)

	err = sched.Run(ctx, handlerService.Tick)
	if err != nil {
		handlerService.Abort()
		if errors.Is(err, context.Canceled) {
			Logger.Info("Race cancelled", "raceId", raceID)
			return nil
		}
		return err
	}

	if v != nil {
		// leave the result on screen until the user quits
		select {
		case <-viewDone:
		case <-ctx.Done():
		}
	}
	closeView()

	result := handlerService.Result()
	if result == nil {
		return fmt.Errorf("race %s ended without a result", raceID)
	}
	fmt.Fprintf(os.Stdout, "%s wins in %.2fs (%d ticks, %d contacts)\n",
		result.WinnerName, result.RaceTime, result.Ticks, result.Contacts)
	return nil
}

func currentFrame() view.Frame {
	return view.Frame{
		Snapshot:   handlerService.Snapshot(),
		Attributes: handlerService.Attributes(),
		Result:     handlerService.Result(),
	}
}

// hostRace serves the line protocol on stdin/stdout until stdin closes or
// ctx is cancelled. Timing belongs to the host.
func hostRace(ctx context.Context) error {
	Logger.Info("Serving host commands on stdin")

	errCh := make(chan error, 1)
	go func() {
		errCh <- handlers.ServeLines(ctx, eventDispatcher, os.Stdin, os.Stdout)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		Logger.Info("Host input closed")
		return nil
	case <-ctx.Done():
		Logger.Info("Host session interrupted")
		return nil
	}
}
