// Package daemon runs one gateway: it polls the library, forwards events to
// the uplink and keeps the sensor store in step with the radio.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mbalug7/go-tarts/pkg/config"
	"github.com/mbalug7/go-tarts/pkg/hal"
	"github.com/mbalug7/go-tarts/pkg/ident"
	"github.com/mbalug7/go-tarts/pkg/sensor"
	"github.com/mbalug7/go-tarts/pkg/store"
	"github.com/mbalug7/go-tarts/pkg/tarts"
	"github.com/mbalug7/go-tarts/pkg/uplink"
)

const (
	publishTimeout = 10 * time.Second
	storeTimeout   = 5 * time.Second
)

var ErrStopped = errors.New("daemon stopped")

// Daemon owns the library. Every call into it happens on the Run goroutine,
// other goroutines hand work over with Do.
type Daemon struct {
	cfg   *config.Config
	lib   *tarts.Lib
	gwID  string
	sink  uplink.Sink
	store store.Store

	commands chan func()
	done     chan struct{}
}

// New registers the gateway and its sensors. sink and st may be nil.
func New(ctx context.Context, cfg *config.Config, transport hal.Transport, sink uplink.Sink, st store.Store, opts ...tarts.Option) (*Daemon, error) {
	obj := &Daemon{
		cfg:      cfg,
		lib:      tarts.New(opts...),
		gwID:     cfg.Gateway.ID,
		sink:     sink,
		store:    st,
		commands: make(chan func()),
		done:     make(chan struct{}),
	}
	obj.lib.RegisterOnGatewayMessageCb(obj.onGatewayMessage)
	obj.lib.RegisterOnGatewayPersistCb(obj.onGatewayPersist)
	obj.lib.RegisterOnSensorPersistCb(obj.onSensorPersist)
	obj.lib.RegisterOnSensorMessageCb(obj.onSensorMessage)
	obj.lib.RegisterOnLogExceptionCb(onException)

	if err := obj.lib.RegisterGateway(tarts.NewGateway(cfg.Gateway.ID, cfg.Gateway.ChannelMask, transport)); err != nil {
		return nil, fmt.Errorf("failed to register gateway %s: %w", cfg.Gateway.ID, err)
	}
	if err := obj.loadSensors(ctx); err != nil {
		if cerr := obj.lib.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to release gateway")
		}
		return nil, err
	}
	return obj, nil
}

// loadSensors registers the configured sensors, then the stored ones that are
// not configured explicitly
func (obj *Daemon) loadSensors(ctx context.Context) error {
	for _, sc := range obj.cfg.Sensors {
		s, err := sc.Sensor()
		if err != nil {
			return err
		}
		if err := obj.lib.RegisterSensor(obj.gwID, s); err != nil {
			return fmt.Errorf("failed to register sensor %s: %w", sc.ID, err)
		}
	}
	if obj.store == nil {
		return nil
	}
	records, err := obj.store.LoadSensors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored sensors: %w", err)
	}
	for _, rec := range records {
		if obj.lib.FindSensor(rec.ID) != nil {
			continue
		}
		s, err := rec.Sensor()
		if err != nil {
			log.Warn().Err(err).Msg("skipping stored sensor")
			continue
		}
		if err := obj.lib.RegisterSensor(obj.gwID, s); err != nil {
			log.Warn().Err(err).Str("sensor", rec.ID).Msg("failed to restore sensor")
		}
	}
	return nil
}

// Run polls the gateway until ctx is done, then takes the radio down
func (obj *Daemon) Run(ctx context.Context) error {
	defer close(obj.done)
	ticker := time.NewTicker(obj.cfg.PollInterval)
	defer ticker.Stop()

	log.Info().Str("gateway", obj.gwID).Dur("poll_interval", obj.cfg.PollInterval).Msg("gateway loop started")
	for {
		select {
		case <-ctx.Done():
			if err := obj.lib.RemoveGateway(obj.gwID); err != nil {
				return fmt.Errorf("failed to remove gateway: %w", err)
			}
			return nil
		case fn := <-obj.commands:
			fn()
		case <-ticker.C:
			obj.lib.Process()
		}
	}
}

// Do runs fn on the loop goroutine and waits for its result
func (obj *Daemon) Do(ctx context.Context, fn func(lib *tarts.Lib) error) error {
	res := make(chan error, 1)
	select {
	case obj.commands <- func() { res <- fn(obj.lib) }:
	case <-obj.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveSensor detaches a sensor from the radio and drops its stored record
func (obj *Daemon) RemoveSensor(ctx context.Context, id string) error {
	err := obj.Do(ctx, func(lib *tarts.Lib) error {
		if lib.FindSensor(id) == nil {
			return fmt.Errorf("%w: %s", tarts.ErrSensorNotFound, id)
		}
		return lib.RemoveSensor(id)
	})
	if err != nil {
		return err
	}
	if obj.store != nil {
		if serr := obj.store.DeleteSensor(ctx, id); serr != nil && !errors.Is(serr, store.ErrNotFound) {
			return fmt.Errorf("failed to delete stored sensor: %w", serr)
		}
	}
	return nil
}

func (obj *Daemon) onGatewayMessage(gatewayID string, msg tarts.GatewayMessage) {
	log.Info().Str("gateway", gatewayID).Int("code", int(msg)).Msg(msg.String())

	switch msg {
	case tarts.MsgGatewayRegistered:
		obj.publish(uplink.GatewayUp(gatewayID))
	case tarts.MsgGatewayUnregistered:
		obj.publish(uplink.GatewayDown(gatewayID))
	case tarts.MsgUnregisteredSensor:
		if gw := obj.lib.FindGateway(gatewayID); gw != nil {
			obj.adopt(gw)
		}
	case tarts.MsgStateActive:
		if gw := obj.lib.FindGateway(gatewayID); gw != nil {
			obj.publish(uplink.GatewayActive(gatewayID, gw.OperatingChannel()))
		}
	}
}

// adopt registers the last unknown sensor the gateway heard and reads its
// configuration back
func (obj *Daemon) adopt(gw *tarts.Gateway) {
	id := gw.LastUnknownID()
	t := gw.LastUnknownSensorType()
	if !obj.cfg.Sniffer.Enabled {
		log.Warn().Str("sensor", id).Stringer("type", t).Msg("unregistered sensor heard")
		return
	}
	if _, err := sensor.Lookup(t); err != nil {
		log.Warn().Err(err).Str("sensor", id).Msg("not adopting sensor")
		return
	}
	s := sensor.New(ident.Decode(id), t)
	if err := obj.lib.RegisterSensor(gw.ID(), s); err != nil {
		log.Warn().Err(err).Str("sensor", id).Msg("failed to adopt sensor")
		return
	}
	s.RequestConfigurations()
	log.Info().Str("sensor", s.Label()).Str("name", s.Name()).Msg("sensor adopted")
	obj.publish(uplink.SensorUp(gw.ID(), s.Label(), s.Name()))
}

func (obj *Daemon) onGatewayPersist(gatewayID string) {
	if obj.store == nil {
		return
	}
	gw := obj.lib.FindGateway(gatewayID)
	if gw == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rec := store.GatewayRecord{
		ID:          gw.ID(),
		ChannelMask: gw.ChannelMask(),
		Channel:     gw.OperatingChannel(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := obj.store.SaveGateway(ctx, rec); err != nil {
		log.Error().Err(err).Str("gateway", gatewayID).Msg("failed to persist gateway")
	}
}

func (obj *Daemon) onSensorPersist(sensorID string) {
	if obj.store == nil {
		return
	}
	s := obj.lib.FindSensor(sensorID)
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := obj.store.SaveSensor(ctx, store.SensorRecord(obj.gwID, s)); err != nil {
		log.Error().Err(err).Str("sensor", sensorID).Msg("failed to persist sensor")
	}
}

func (obj *Daemon) onSensorMessage(msg sensor.Message) {
	log.Debug().
		Str("sensor", msg.Label()).
		Stringer("type", msg.Type).
		Str("battery", msg.Battery()).
		Str("rssi", msg.SignalStrength()).
		Int("readings", len(msg.Readings)).
		Msg("sensor data")
	obj.publish(uplink.SensorData(msg))
}

func onException(ex tarts.Exception) {
	log.WithLevel(ex.Severity()).Int("code", int(ex)).Msg(ex.String())
}

func (obj *Daemon) publish(ev uplink.Event) {
	if obj.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := obj.sink.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("event", ev.Event).Msg("failed to publish event")
	}
}
