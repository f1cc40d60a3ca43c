package hal

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mazen160/go-random"
	"github.com/rs/zerolog/log"
	"github.com/tarm/serial"
	"github.com/warthog618/gpiod"
)

const (
	readPollInterval = 10 * time.Millisecond
	prtsPollInterval = 10 * time.Millisecond
	prtsMaxChecks    = 10
)

// UARTTransport talks to a gateway plate over a UART with four handshake lines:
// Activity (plate present, active low), PCTS (host not ready, driven by us),
// PRTS (radio ready to receive, active low) and NRST (radio reset, active low).
type UARTTransport struct {
	cfg ModuleConfig

	chip         *gpiod.Chip
	ActivityLine *gpiod.Line
	PCTSLine     *gpiod.Line
	PRTSLine     *gpiod.Line
	NRSTLine     *gpiod.Line
	serialStream *serial.Port

	assembler *Assembler

	muPrtsWaiters sync.Mutex
	prtsWaiters   map[string]chan struct{} // holds channels that wait for falling PRTS edge
	muWrite       sync.Mutex               // one frame on the wire at a time

	stop chan struct{}
	done chan struct{}
}

func NewUARTTransport(cfg ModuleConfig) *UARTTransport {
	obj := &UARTTransport{
		cfg:         cfg.withDefaults(),
		prtsWaiters: make(map[string]chan struct{}),
	}
	obj.assembler = NewAssembler(obj.setHostBusy)
	return obj
}

// Initialize pulses the radio reset, checks that a plate is present and starts
// the serial reader. A previously opened link is closed first.
func (obj *UARTTransport) Initialize() (err error) {
	if cerr := obj.Close(); cerr != nil {
		log.Warn().Err(cerr).Str("tty", obj.cfg.TTY).Msg("failed to close previous link")
	}
	defer func() {
		if err != nil {
			obj.releaseLines()
		}
	}()

	obj.chip, err = gpiod.NewChip(obj.cfg.GPIOChip, gpiod.WithConsumer("tarts"))
	if err != nil {
		return fmt.Errorf("failed to create GPIO chip: %w", err)
	}
	obj.ActivityLine, err = obj.chip.RequestLine(obj.cfg.ActivityPin, gpiod.AsInput, gpiod.WithPullDown)
	if err != nil {
		return fmt.Errorf("failed to request Activity GPIO line: %w", err)
	}
	obj.PCTSLine, err = obj.chip.RequestLine(obj.cfg.PCTSPin, gpiod.AsOutput(0))
	if err != nil {
		return fmt.Errorf("failed to request PCTS GPIO line: %w", err)
	}
	obj.PRTSLine, err = obj.chip.RequestLine(obj.cfg.PRTSPin,
		gpiod.WithPullUp, gpiod.WithEventHandler(obj.onPrtsFallEvent), gpiod.WithFallingEdge)
	if err != nil {
		return fmt.Errorf("failed to request PRTS GPIO line: %w", err)
	}
	// reset is held until the plate answered on the activity line
	obj.NRSTLine, err = obj.chip.RequestLine(obj.cfg.NRSTPin, gpiod.AsOutput(0))
	if err != nil {
		return fmt.Errorf("failed to request NRST GPIO line: %w", err)
	}
	time.Sleep(DefaultResetHold)

	if err = obj.waitForPlate(); err != nil {
		if relErr := obj.NRSTLine.SetValue(1); relErr != nil {
			log.Warn().Err(relErr).Msg("failed to release radio reset")
		}
		return err
	}
	if err = obj.NRSTLine.SetValue(1); err != nil {
		return fmt.Errorf("failed to release radio reset: %w", err)
	}
	time.Sleep(DefaultBootTime)

	config := &serial.Config{
		Name:        obj.cfg.TTY,
		Baud:        obj.cfg.Baud,
		Size:        8,
		ReadTimeout: readPollInterval,
	}
	obj.serialStream, err = serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("failed to open serial port, err: %w", err)
	}
	obj.assembler.Reset()
	obj.stop = make(chan struct{})
	obj.done = make(chan struct{})
	go obj.readLoop(obj.serialStream, obj.stop, obj.done)
	log.Debug().Str("tty", obj.cfg.TTY).Int("baud", obj.cfg.Baud).Msg("gateway link open")
	return nil
}

func (obj *UARTTransport) waitForPlate() error {
	for i := 0; i < defaultPlateAttempts; i++ {
		val, err := obj.ActivityLine.Value()
		if err != nil {
			return fmt.Errorf("failed to read Activity line: %w", err)
		}
		if val == 0 {
			return nil
		}
		time.Sleep(readPollInterval)
	}
	return ErrNoPlate
}

func (obj *UARTTransport) readLoop(port *serial.Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 64)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Str("tty", obj.cfg.TTY).Msg("serial read failed, reader exiting")
			return
		}
		now := time.Now()
		if n > 0 {
			obj.assembler.Feed(buf[:n], now)
		}
		obj.assembler.Expire(now)
	}
}

func (obj *UARTTransport) setHostBusy(busy bool) {
	if obj.PCTSLine == nil {
		return
	}
	val := 0
	if busy {
		val = 1
	}
	if err := obj.PCTSLine.SetValue(val); err != nil {
		log.Warn().Err(err).Msg("failed to drive PCTS line")
	}
}

func (obj *UARTTransport) InboundReady() bool {
	return obj.assembler.Ready()
}

func (obj *UARTTransport) RetrieveInbound() []byte {
	return obj.assembler.Take()
}

// Send waits until the radio signals PRTS low and writes the frame
func (obj *UARTTransport) Send(frame []byte) error {
	if len(frame) > len(obj.assembler.buf) {
		return ErrFrameTooBig
	}
	obj.muWrite.Lock()
	defer obj.muWrite.Unlock()
	if obj.serialStream == nil {
		return ErrNotOpen
	}
	if err := obj.waitClearToSend(); err != nil {
		return err
	}
	if _, err := obj.serialStream.Write(frame); err != nil {
		return fmt.Errorf("failed to send data, err: %w", err)
	}
	return nil
}

func (obj *UARTTransport) waitClearToSend() error {
	for count := 0; ; count++ {
		val, err := obj.PRTSLine.Value()
		if err != nil {
			return fmt.Errorf("failed to check PRTS line state: %w", err)
		}
		if val == 0 {
			return nil
		}
		if count > prtsMaxChecks {
			return ErrModuleDeaf
		}
		ch := make(chan struct{}, 1)
		id, err := random.String(16)
		if err != nil {
			return fmt.Errorf("failed to generate random id: %w", err)
		}
		obj.muPrtsWaiters.Lock()
		obj.prtsWaiters[id] = ch
		obj.muPrtsWaiters.Unlock()
		select {
		case <-time.After(prtsPollInterval):
			obj.muPrtsWaiters.Lock()
			delete(obj.prtsWaiters, id)
			obj.muPrtsWaiters.Unlock()
		case <-ch:
		}
	}
}

func (obj *UARTTransport) onPrtsFallEvent(evt gpiod.LineEvent) {
	obj.muPrtsWaiters.Lock()
	defer obj.muPrtsWaiters.Unlock()
	for id, ch := range obj.prtsWaiters {
		ch <- struct{}{}
		delete(obj.prtsWaiters, id)
	}
}

func (obj *UARTTransport) releaseLines() {
	lines := []**gpiod.Line{&obj.ActivityLine, &obj.PCTSLine, &obj.PRTSLine, &obj.NRSTLine}
	for _, l := range lines {
		if *l == nil {
			continue
		}
		if err := (*l).Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close GPIO line")
		}
		*l = nil
	}
	if obj.chip != nil {
		if err := obj.chip.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close GPIO chip")
		}
		obj.chip = nil
	}
}

// Close stops the reader, closes the serial port and releases the GPIO lines.
// Released lines fall back to inputs so the radio leaves reset.
func (obj *UARTTransport) Close() error {
	obj.muWrite.Lock()
	defer obj.muWrite.Unlock()
	var err error
	if obj.serialStream != nil {
		close(obj.stop)
		<-obj.done
		if cerr := obj.serialStream.Close(); cerr != nil {
			err = fmt.Errorf("failed to close serial stream: %w", cerr)
		}
		obj.serialStream = nil
	}
	obj.releaseLines()
	return err
}
