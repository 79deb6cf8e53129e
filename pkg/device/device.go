// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device drives one NXT brick over a byte stream: it owns the
// connection lifecycle, serializes calls, polls motor telemetry and reports
// every change to subscribers.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/brickstat/internal/syncutil"
	"github.com/Thermoquad/brickstat/pkg/nxt"
)

// Default parameters of the foreground calls offered by the control UI
const (
	DefaultToneFrequency = 256
	DefaultToneDuration  = 100 * time.Millisecond
	DefaultMotorPower    = 20
)

// Device is a connection to one brick
type Device struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger

	mu         syncutil.Mutex
	state      State
	log        *eventLog
	readings   map[nxt.Port]Reading
	firmware   *nxt.FirmwareVersion
	stats      *nxt.Statistics
	stream     *onceStream
	serializer *Serializer
	err        error

	notify   *notifier
	ctx      context.Context // Cancelled once the connection stops being live
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// Snapshot is a consistent copy of the observable device state
type Snapshot struct {
	State    State
	Log      []string
	Readings []Reading // In polling order, only ports read so far
	Firmware *nxt.FirmwareVersion
}

// New creates a device in StateStart. Nothing is opened until Connect.
func New(transport Transport, cfg Config) (*Device, error) {
	if transport == nil {
		return nil, errors.New("device: nil transport")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("device: invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Device{
		transport: transport,
		cfg:       cfg,
		logger:    cfg.Logger,
		state:     State{Kind: StateStart},
		log:       newEventLog(cfg.LogRetention),
		readings:  make(map[nxt.Port]Reading),
		stats:     nxt.NewStatistics(),
		notify:    newNotifier(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

//////////////////////////////////////////////////////////////
// Observation
//////////////////////////////////////////////////////////////

// Subscribe registers fn for every later event. Events arrive in the order
// they happened, on a single goroutine. The returned func unsubscribes.
func (d *Device) Subscribe(fn func(Event)) (unsubscribe func()) {
	return d.notify.subscribe(fn)
}

// State returns the current lifecycle state
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Snapshot returns the state, log, latest readings and firmware version
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{
		State: d.state,
		Log:   d.log.snapshot(),
	}
	for _, p := range d.cfg.Ports {
		if r, ok := d.readings[p]; ok {
			snap.Readings = append(snap.Readings, r)
		}
	}
	if d.firmware != nil {
		fw := *d.firmware
		snap.Firmware = &fw
	}
	return snap
}

// Stats returns a copy of the traffic counters with current rates
func (d *Device) Stats() nxt.Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.CalculateRates()
	return *d.stats
}

// Done is closed once the device reaches StateClosed or StateGone and the
// final events have been delivered to subscribers
func (d *Device) Done() <-chan struct{} {
	return d.done
}

// Err returns the failure that moved the device to StateGone, if any
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

//////////////////////////////////////////////////////////////
// Lifecycle
//////////////////////////////////////////////////////////////

// Connect opens the transport, queries the firmware version and starts the
// telemetry poller. It is accepted only in StateStart and blocks until the
// device is ready or has failed. A failure leaves the device in StateGone.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.state.Kind != StateStart {
		state := d.state
		d.mu.Unlock()
		return &nxt.Error{
			Kind:     nxt.KindNotReady,
			Op:       "connect",
			Detail:   fmt.Sprintf("connect is only accepted from start, device is %s", state.Kind),
			Expected: -1,
			Actual:   -1,
		}
	}
	d.setStateLocked(State{Kind: StateConnecting})
	d.mu.Unlock()

	d.logger.Info("opening transport", "baud", d.cfg.Open.BaudRate, "buffer", d.cfg.Open.BufferSize)
	raw, err := d.transport.Open(ctx, d.cfg.Open)
	if err != nil {
		e := nxt.NewError(nxt.KindTransportOpenFailure, "open", err)
		d.crash(e)
		return e
	}
	stream := newOnceStream(raw)

	serializer := NewSerializer(stream, d.cfg.CallTimeout, d.logger, SerializerHooks{
		OnSent:  d.recordSent,
		OnReply: d.recordReply,
		OnFatal: d.crash,
	})

	d.mu.Lock()
	if d.state.Kind != StateConnecting {
		d.mu.Unlock()
		_ = stream.Close()
		return nxt.NewError(nxt.KindConnectionLost, "connect", errors.New("closed while opening"))
	}
	d.stream = stream
	d.serializer = serializer
	d.wg.Add(1)
	d.mu.Unlock()

	serializer.Start()
	go d.readLoop(stream, serializer)

	fw, err := call(ctx, d, nxt.GetFirmwareVersion{})
	if err != nil {
		if d.State().Kind == StateConnecting {
			d.crash(err)
		}
		return err
	}

	d.mu.Lock()
	if d.state.Kind != StateConnecting {
		d.mu.Unlock()
		return nxt.NewError(nxt.KindConnectionLost, "connect", errors.New("closed during handshake"))
	}
	d.firmware = &fw
	line, _ := json.Marshal(fw)
	d.appendLocked(fmt.Sprintf("firmware versions: %s", line))
	d.setStateLocked(State{Kind: StateReady})
	d.wg.Add(1)
	d.mu.Unlock()

	d.logger.Info("device ready", "firmware", fw.String())
	go d.poll()
	return nil
}

// Close shuts the connection down and waits for the background goroutines
// and the delivery of the final events. It must not be called from a
// subscriber. Closing a device that never connected moves it straight to
// StateClosed. Closing an already finished device is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	switch {
	case d.state.Kind == StateStart:
		d.setStateLocked(State{Kind: StateClosed})
		d.mu.Unlock()
		d.release(nil, nil)
		<-d.done
		return nil
	case d.state.Terminal(), d.state.Kind == StateClosing:
		d.mu.Unlock()
		d.wg.Wait()
		<-d.done
		return nil
	}
	d.setStateLocked(State{Kind: StateClosing})
	serializer, stream := d.serializer, d.stream
	d.mu.Unlock()

	d.cancel()
	if serializer != nil {
		serializer.Close(errors.New("device closed"))
	}
	var err error
	if stream != nil {
		err = stream.Close()
	}
	d.wg.Wait()
	if serializer != nil {
		serializer.Wait()
	}

	d.mu.Lock()
	if d.state.Kind == StateClosing {
		d.setStateLocked(State{Kind: StateClosed})
	}
	d.mu.Unlock()
	d.release(nil, nil)
	<-d.done

	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// crash moves the device to StateGone. Only the first failure is recorded;
// the stream is closed and every pending call fails.
func (d *Device) crash(err error) {
	d.mu.Lock()
	if d.state.Terminal() {
		d.mu.Unlock()
		return
	}
	d.err = err
	d.stats.RecordError(err)
	d.setStateLocked(State{Kind: StateGone, Reason: err})
	serializer, stream := d.serializer, d.stream
	d.mu.Unlock()

	d.logger.Error("connection failed", "error", err)
	d.release(serializer, stream)
}

// closedByPeer handles a clean end of stream while the connection is live
func (d *Device) closedByPeer() {
	d.mu.Lock()
	if !d.state.Live() {
		d.mu.Unlock()
		return
	}
	d.setStateLocked(State{Kind: StateClosed})
	serializer, stream := d.serializer, d.stream
	d.mu.Unlock()

	d.logger.Info("transport closed by device")
	d.release(serializer, stream)
}

// release tears down whatever is still open. Done closes once every queued
// event has been delivered. It never waits for the background goroutines,
// since they call it.
func (d *Device) release(serializer *Serializer, stream *onceStream) {
	d.cancel()
	if serializer != nil {
		serializer.Close(errors.New("connection ended"))
	}
	if stream != nil {
		_ = stream.Close()
	}
	d.doneOnce.Do(func() {
		d.notify.close()
		go func() {
			<-d.notify.done
			close(d.done)
		}()
	})
}

//////////////////////////////////////////////////////////////
// Foreground calls
//////////////////////////////////////////////////////////////

// PlayTone sounds the speaker. The frequency must be within 200..14000 Hz.
func (d *Device) PlayTone(ctx context.Context, frequency int, duration time.Duration) error {
	cmd := nxt.PlayTone{Frequency: frequency, Duration: duration}
	return d.foreground(ctx, "playTone", cmd.Payload, func(ctx context.Context) error {
		_, err := call(ctx, d, cmd)
		return err
	})
}

// RunMotor drives port at power (-100..100). For a single port the new output
// state is read back and logged.
func (d *Device) RunMotor(ctx context.Context, port nxt.Port, power int) error {
	cmd := nxt.SetOutputState{Port: port, Mode: nxt.OutputOn, Power: power}
	return d.foreground(ctx, "runMotor", cmd.Payload, func(ctx context.Context) error {
		return d.setOutput(ctx, cmd)
	})
}

// IdleMotor lets port coast
func (d *Device) IdleMotor(ctx context.Context, port nxt.Port) error {
	cmd := nxt.SetOutputState{Port: port, Mode: nxt.OutputCoast}
	return d.foreground(ctx, "idleMotor", cmd.Payload, func(ctx context.Context) error {
		return d.setOutput(ctx, cmd)
	})
}

func (d *Device) setOutput(ctx context.Context, cmd nxt.SetOutputState) error {
	if _, err := call(ctx, d, cmd); err != nil {
		return err
	}
	if cmd.Port == nxt.PortAll {
		return nil
	}

	st, err := call(ctx, d, nxt.GetOutputState{Port: cmd.Port})
	if err != nil {
		return err
	}
	line, _ := json.Marshal(st)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Live() {
		d.storeReadingLocked(st)
		d.appendLocked(string(line))
	}
	return nil
}

// foreground validates the parameters, then runs fn with the device in
// StateCalling. Invalid parameters never touch the connection.
func (d *Device) foreground(ctx context.Context, name string, validate func() ([]byte, error), fn func(context.Context) error) error {
	if _, err := validate(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.state.Kind != StateReady {
		state := d.state
		d.mu.Unlock()
		return &nxt.Error{
			Kind:     nxt.KindNotReady,
			Op:       name,
			Detail:   fmt.Sprintf("device is %s", state.Kind),
			Expected: -1,
			Actual:   -1,
		}
	}
	d.setStateLocked(State{Kind: StateCalling, Call: name})
	d.mu.Unlock()

	err := fn(ctx)

	d.mu.Lock()
	if d.state.Kind == StateCalling {
		d.setStateLocked(State{Kind: StateReady})
	}
	d.mu.Unlock()
	return err
}

// call sends one command through the serializer and decodes its reply.
// Fatal failures crash the connection before returning.
func call[R any](ctx context.Context, d *Device, cmd nxt.Command[R]) (R, error) {
	var zero R
	payload, err := cmd.Payload()
	if err != nil {
		return zero, err
	}

	d.mu.Lock()
	serializer := d.serializer
	d.mu.Unlock()
	if serializer == nil {
		return zero, nxt.NewError(nxt.KindConnectionLost, cmd.Name(), errors.New("not connected"))
	}

	reply, err := serializer.Call(ctx, cmd.Name(), payload)
	if err != nil {
		d.fail(err)
		return zero, err
	}
	resp, err := cmd.Decode(reply)
	if err != nil {
		d.fail(err)
		return zero, err
	}
	return resp, nil
}

// fail crashes the connection for fatal errors on a live connection.
// Errors caused by the caller's context or by an orderly close are not fatal.
func (d *Device) fail(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if nxt.IsFatal(err) && d.State().Live() {
		d.crash(err)
	}
}

//////////////////////////////////////////////////////////////
// Internals
//////////////////////////////////////////////////////////////

// setStateLocked applies a checked transition, logs it and notifies.
// Callers hold d.mu. Invalid transitions are logged and ignored.
func (d *Device) setStateLocked(to State) {
	if err := checkTransition(d.state, to); err != nil {
		d.logger.Warn("rejected state change", "from", d.state.Kind.String(), "to", to.Kind.String(), "error", err)
		return
	}
	d.state = to
	d.logger.Debug("state changed", "state", to.String())
	d.notify.publish(Event{Kind: EventStateChanged, Time: time.Now(), State: to})
	d.appendLocked(fmt.Sprintf("*** %s ***", to))
}

func (d *Device) appendLocked(line string) {
	d.log.add(line)
	d.notify.publish(Event{Kind: EventLogAppended, Time: time.Now(), Line: line})
}

func (d *Device) storeReadingLocked(st nxt.OutputState) Reading {
	r := Reading{
		Port:     st.Port,
		Power:    st.Power,
		Position: st.Position(),
		Output:   st,
		Time:     time.Now(),
	}
	d.readings[st.Port] = r
	d.notify.publish(Event{Kind: EventTelemetryUpdated, Time: r.Time, Reading: r})
	return r
}

func (d *Device) readLoop(stream *onceStream, serializer *Serializer) {
	defer d.wg.Done()

	fr := nxt.NewFrameReader(stream, d.cfg.Open.BufferSize)
	for frame, err := range fr.Frames() {
		if err != nil {
			d.readFailed(err)
			return
		}
		d.recordReceived(frame)
		if err := serializer.Deliver(frame); err != nil {
			d.readFailed(err)
			return
		}
	}
	d.closedByPeer()
}

// readFailed crashes the connection unless it is already shutting down,
// in which case errors from the closing stream are expected
func (d *Device) readFailed(err error) {
	d.mu.Lock()
	live := d.state.Live()
	d.mu.Unlock()
	if !live {
		return
	}
	if nxt.KindOf(err) == nxt.KindUnknown {
		err = fmt.Errorf("read: %w", err)
	}
	d.crash(err)
}

func (d *Device) recordSent(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.RecordSent(len(frame))
}

func (d *Device) recordReceived(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.RecordReceived(len(frame))
}

func (d *Device) recordReply(op string, latency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.RecordCall(latency)
}
