package vehicle

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"

	"github.com/vajra-io/vajra/internal/pkg/metrics"
	fsmutil "github.com/vajra-io/vajra/internal/pkg/util/fsm"
	"github.com/vajra-io/vajra/internal/transport"
)

const (
	// EventGoLive moves the link to live on CONNECTED.
	EventGoLive = "go_live"
	// EventFallBack returns to simulation on any other terminal status.
	EventFallBack = "fall_back"
)

// linkMachine tracks whether inbound data is live or simulated.
type linkMachine struct {
	*fsm.FSM
	log logr.Logger
}

func newLinkMachine(log logr.Logger) *linkMachine {
	l := &linkMachine{log: log}

	events := fsm.Events{
		{Name: EventGoLive, Src: []string{string(ModeSimulating)}, Dst: string(ModeLive)},
		{Name: EventFallBack, Src: []string{string(ModeLive)}, Dst: string(ModeSimulating)},
	}

	callbacks := fsm.Callbacks{
		fsmutil.OnEnter(string(ModeLive)):       fsmutil.WrapEvent(l.enterLive),
		fsmutil.OnEnter(string(ModeSimulating)): fsmutil.WrapEvent(l.enterSimulating),
	}

	l.FSM = fsm.NewFSM(string(ModeSimulating), events, callbacks)
	metrics.LinkLive.Set(0)
	return l
}

// apply feeds a transport status into the machine. CONNECTING leaves the
// mode alone.
func (l *linkMachine) apply(ctx context.Context, s transport.Status) error {
	var event string
	switch {
	case s == transport.StatusConnecting:
		return nil
	case s.Live():
		event = EventGoLive
	default:
		event = EventFallBack
	}
	if !l.Can(event) {
		return nil
	}
	return fsmutil.Settle(l.Event(ctx, event, s))
}

func (l *linkMachine) mode() Mode {
	return Mode(l.Current())
}

func (l *linkMachine) enterLive(_ context.Context, e *fsm.Event) error {
	metrics.LinkLive.Set(1)
	l.log.Info("Live link up, simulator ticks suppressed", "status", e.Args[0])
	return nil
}

func (l *linkMachine) enterSimulating(_ context.Context, e *fsm.Event) error {
	metrics.LinkLive.Set(0)
	l.log.Info("Live link lost, falling back to simulation", "status", e.Args[0])
	return nil
}
