package receivers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	payo "github.com/payoapp/payo/pkg"
	"github.com/payoapp/payo/pkg/webhook"
	"github.com/payoapp/payo/pkg/conductor"
)

func NewCallbackSender(config payo.CallbackConfig, bus payo.MessageBus) CallbackSender {
	return CallbackSender{
		Rec:        make(chan payo.Message, 1000),
		Path:       config.Path,
		HMACSecret: config.HMACSecret,
		Bus:        bus,
		notifier:   webhook.NewNotifier(),
	}
}

type CallbackSender struct {
	// incoming msgs
	Rec        chan payo.Message
	Path       string
	HMACSecret string
	Bus        payo.MessageBus
	notifier   *webhook.Notifier
}

// Implements payo.MessageSubscriber
func (s CallbackSender) GetChan() chan payo.Message {
	return s.Rec
}

// Implements conductor.Service
func (s CallbackSender) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			// handle stopping the service
			case <-stop:
				close(s.Rec)
				close(stopped)
				return
			case msg := <-s.Rec:
				err := s.postWithRetry(msg)
				if err != nil {
					s.Bus.Send(payo.SYS_ERR, fmt.Sprintf("CallbackSender: %v", err))
				}
			}
		}
	}()
	return nil
}

// postWithRetry delivers one bus message, retrying with exponential
// backoff. The delivery failure of a webhook is a latency problem for
// the subscriber, never a correctness problem for us: invoice state in
// the store stays authoritative either way.
func (s CallbackSender) postWithRetry(msg payo.Message) error {
	maxRetries := 6
	delay := 1 * time.Second
	maxDelay := 32 * time.Second

	// The bus carries the payload as encoded JSON; decode back to a
	// generic value so the notifier can canonicalize it.
	var payload any
	if err := json.Unmarshal(msg.Message, &payload); err != nil {
		return fmt.Errorf("bad payload on bus: %v", err)
	}

	for attempt := 0; ; attempt++ {
		err := s.notifier.Deliver(payload, s.Path, s.HMACSecret, msg.ID)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return fmt.Errorf("giving up on %s after %d attempts: %v", s.Path, attempt+1, err)
		}
		s.Bus.Send(payo.SYS_MSG, fmt.Sprintf("CallbackSender: attempt %d/%d for %s failed, retrying in %v: %v",
			attempt+1, maxRetries+1, s.Path, delay, err))
		time.Sleep(delay)
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// Reads config and sets up any configured callbacks
func SetupCallbacks(cond *conductor.Conductor, bus payo.MessageBus, conf payo.Config) {
	for name, c := range conf.Callbacks {
		s := NewCallbackSender(c, bus)
		cond.Service(fmt.Sprintf("Callback sender for: %s", c.Path), s)

		types := []payo.EventType{}
		for _, t := range c.Types {
			match := false
			for _, x := range payo.EVENT_TYPES {
				if t == x.Type() {
					match = true
					types = append(types, x)
				}
			}
			if !match {
				fmt.Printf("⚠️  Callback %s: ignoring invalid message type: %s\n", name, t)
			}
		}
		bus.Register(s, types...)
	}
}
