// Package daemon wires the alarm controller to real hardware and telemetry
// and runs it until the context is cancelled or the hardware faults.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carlosefr/pialarm/internal/alarm"
	"github.com/carlosefr/pialarm/internal/config"
	"github.com/carlosefr/pialarm/internal/hw"
	"github.com/carlosefr/pialarm/internal/mqtt"
)

// statusInterval is how often the daemon samples the controller for the
// debug status line and telemetry transitions.
const statusInterval = 1 * time.Second

// Options carries the daemon dependencies built by the CLI layer.
type Options struct {
	Config *config.Config
	Logger *zap.SugaredLogger
}

// Run starts the alarm and blocks until ctx is cancelled or a hardware
// fault occurs. The controller is closed on every exit path.
func Run(ctx context.Context, opts Options) error {
	cfg, log := opts.Config, opts.Logger

	port, err := hw.NewRealPort(cfg.GPIOChip, nilIfEmpty(cfg.InputOffsets), nilIfEmpty(cfg.OutputOffsets))
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}

	ctrl, err := alarm.New(alarm.Options{
		Logger:               log,
		Port:                 port,
		ArmInput:             cfg.ArmInput,
		ArmedOutput:          cfg.ArmedOutput,
		ActiveOutput:         cfg.ActiveOutput,
		BuzzerOutput:         cfg.BuzzerOutput,
		SounderOutput:        cfg.SounderOutput,
		StrobeOutput:         cfg.StrobeOutput,
		ArmDelay:             cfg.ArmDelay(),
		AlarmDelay:           cfg.AlarmDelay(),
		AlarmDuration:        cfg.AlarmDuration(),
		NormallyClosedInputs: cfg.NormallyClosedInputs,
		IgnoredInputs:        cfg.IgnoredInputs,
	})
	if err != nil {
		port.Close()
		return fmt.Errorf("init alarm: %w", err)
	}
	defer ctrl.Close()

	var pub mqtt.Publisher
	if cfg.Broker != "" {
		real, err := mqtt.NewRealPublisher(log, cfg.Broker)
		if err != nil {
			// Telemetry is optional; the alarm must run without it.
			log.Warnf("MQTT unavailable, continuing without telemetry: %v", err)
		} else {
			pub = real
			defer pub.Close()
		}
	}

	publishSystem(log, pub, mqtt.SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})

	err = watch(ctx, ctrl, pub, log)

	reason := ""
	if err == nil {
		reason = "signal"
	}
	publishSystem(log, pub, mqtt.SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: reason, Retained: true})

	return err
}

// watch samples the controller once per second, logging status and turning
// armed/active flips into telemetry events. Returns nil on cancellation and
// the fault on hardware failure.
func watch(ctx context.Context, ctrl *alarm.Controller, pub mqtt.Publisher, log *zap.SugaredLogger) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	prevArmed, prevActive := ctrl.Armed(), ctrl.Active()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutdown requested.")
			return nil

		case err := <-ctrl.Faults():
			return fmt.Errorf("hardware fault: %w", err)

		case <-ticker.C:
			armed, active, unsealed := ctrl.Armed(), ctrl.Active(), ctrl.UnsealedInputs()
			log.Debugf("Status: armed=%t unsealed=%v active=%t", armed, unsealed, active)

			for _, e := range Transitions(prevArmed, prevActive, armed, active) {
				publish(log, pub, mqtt.Event{
					Timestamp: time.Now(),
					Type:      e,
					Armed:     armed,
					Active:    active,
					Unsealed:  unsealed,
				})
			}
			prevArmed, prevActive = armed, active
		}
	}
}

// Transitions maps an observed change of the (armed, active) pair to the
// telemetry events it implies, trigger/reset before arm/disarm order.
func Transitions(prevArmed, prevActive, armed, active bool) []mqtt.EventType {
	var events []mqtt.EventType

	if active && !prevActive {
		events = append(events, mqtt.EventTriggered)
	}
	if !active && prevActive {
		events = append(events, mqtt.EventReset)
	}
	if armed && !prevArmed {
		events = append(events, mqtt.EventArmed)
	}
	if !armed && prevArmed {
		events = append(events, mqtt.EventDisarmed)
	}

	return events
}

func publish(log *zap.SugaredLogger, pub mqtt.Publisher, event mqtt.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(event); err != nil {
		log.Warnf("Failed to publish %s event: %v", event.Type, err)
	}
}

func publishSystem(log *zap.SugaredLogger, pub mqtt.Publisher, event mqtt.SystemEvent) {
	if pub == nil {
		return
	}
	if err := pub.PublishSystem(event); err != nil {
		log.Warnf("Failed to publish %s event: %v", event.Event, err)
	}
}

func nilIfEmpty(pins []int) []int {
	if len(pins) == 0 {
		return nil
	}
	return pins
}
