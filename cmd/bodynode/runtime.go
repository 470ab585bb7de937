package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"bodynodes/internal/ahrs"
	"bodynodes/internal/config"
	"bodynodes/internal/i2c"
	"bodynodes/internal/linalg"
	"bodynodes/internal/message"
	"bodynodes/internal/orientation"
	"bodynodes/internal/replay"
	"bodynodes/internal/sensors/bno055"
	"bodynodes/internal/sensors/mpu6050"
	"bodynodes/internal/sim"
	"bodynodes/internal/statusled"
	"bodynodes/internal/udp"
	"bodynodes/internal/web"
)

type sender interface {
	Send(payload []byte) error
	Close() error
}

// nodeRuntime ties one sensor to the host link and the local surfaces.
type nodeRuntime struct {
	cfg    config.Config
	log    logrus.FieldLogger
	sensor *orientation.Sensor
	rel    []*orientation.RelativeSensor
	sender sender
	led    *statusled.Indicator
	status *web.Status
	hub    *web.Hub
	rec    *replay.Writer
	now    func() time.Time

	lastStatus  orientation.Status
	gate        message.ChangeGate
	sendFailing bool
	recFailing  bool
	// recFresh is set until the first session; CreateWriter already wrote
	// its START marker.
	recFresh bool
}

type runtimeDeps struct {
	driver orientation.Driver
	sender sender
	led    statusled.LED
	status *web.Status
	hub    *web.Hub
	now    func() time.Time
}

func newNodeRuntime(cfg config.Config, deps runtimeDeps, log logrus.FieldLogger) (*nodeRuntime, error) {
	if deps.sender == nil {
		return nil, fmt.Errorf("sender is nil")
	}
	if deps.status == nil {
		deps.status = web.NewStatus()
	}
	if deps.now == nil {
		deps.now = time.Now
	}
	r := &nodeRuntime{
		cfg:        cfg,
		log:        log,
		sender:     deps.sender,
		led:        statusled.NewIndicator(deps.led),
		status:     deps.status,
		hub:        deps.hub,
		now:        deps.now,
		lastStatus: orientation.StatusNotAccessible,
		gate:       message.ChangeGate{Threshold: cfg.Host.MinChange},
	}
	r.status.SetStatic(cfg.Node.Bodypart, cfg.Host.Dest, cfg.Sensor.Driver)
	r.status.SetSensorStatus(r.lastStatus.String())

	// Replay feeds the filter directly and needs no sensor.
	if deps.driver == nil {
		return r, nil
	}

	oc, err := sensorConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts := []orientation.Option{orientation.WithClock(deps.now), orientation.WithLogger(log)}
	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		r.rec = w
		r.recFresh = true
		opts = append(opts, orientation.WithSampleHook(r.record))
	}
	s, err := orientation.NewSensor(deps.driver, oc, opts...)
	if err != nil {
		r.closeRecording()
		return nil, err
	}
	r.sensor = s

	shared := sharedDriver{Driver: deps.driver, primary: s}
	for _, rc := range []struct {
		kind orientation.DataKind
		cfg  config.RelativeSensorConfig
	}{
		{orientation.KindAccel, cfg.Sensor.AccelerationRel},
		{orientation.KindGyro, cfg.Sensor.AngularVelocityRel},
	} {
		if !rc.cfg.Enable {
			continue
		}
		rcfg, err := relativeConfig(cfg.Sensor, rc.kind, rc.cfg)
		if err != nil {
			r.closeRecording()
			return nil, err
		}
		rs, err := orientation.NewRelativeSensor(shared, rcfg, orientation.WithClock(deps.now), orientation.WithLogger(log))
		if err != nil {
			r.closeRecording()
			return nil, err
		}
		r.rel = append(r.rel, rs)
	}
	return r, nil
}

// sharedDriver lets the relative sensors reuse the driver the orientation
// sensor owns. Begin only reaches the hardware while the orientation sensor
// has not brought it up.
type sharedDriver struct {
	orientation.Driver
	primary *orientation.Sensor
}

func (d sharedDriver) Begin() error {
	if d.primary.Status() != orientation.StatusNotAccessible {
		return nil
	}
	return d.Driver.Begin()
}

func relativeConfig(sc config.SensorConfig, kind orientation.DataKind, rc config.RelativeSensorConfig) (orientation.RelativeConfig, error) {
	out := orientation.DefaultRelativeConfig(kind)
	out.ReadInterval = sc.ReadInterval
	out.ReconnectCooldown = sc.ReconnectCooldown
	for i, name := range rc.Realign.Order {
		if i >= 3 {
			break
		}
		a, err := orientation.ParseAxis(name)
		if err != nil {
			return orientation.RelativeConfig{}, err
		}
		out.Realign.Order[i+1] = a
	}
	copy(out.Realign.Signs[1:], rc.Realign.Signs)
	return out, nil
}

func sensorConfig(cfg config.Config) (orientation.Config, error) {
	oc := orientation.DefaultConfig()
	oc.ReadInterval = cfg.Sensor.ReadInterval
	oc.ReconnectCooldown = cfg.Sensor.ReconnectCooldown
	for i, name := range cfg.Sensor.Realign.Order {
		if i >= 4 {
			break
		}
		a, err := orientation.ParseAxis(name)
		if err != nil {
			return orientation.Config{}, err
		}
		oc.Realign.Order[i] = a
	}
	copy(oc.Realign.Signs[:], cfg.Sensor.Realign.Signs)
	if cfg.Sensor.Raw() {
		f := fusionConfig(cfg.AHRS)
		oc.Fusion = &f
		oc.UseMagnetometer = cfg.Sensor.UseMagnetometer
	}
	return oc, nil
}

func fusionConfig(a config.AHRSConfig) ahrs.Config {
	fc := ahrs.Config{
		SamplePeriod: a.SamplePeriod,
		Gain:         a.Gain,
		GyroScale:    a.GyroScale,
	}
	copy(fc.AxisSigns[:], a.AxisSigns)
	return fc
}

// openDriver builds the configured driver. The closer releases the I2C bus.
func openDriver(sc config.SensorConfig, now func() time.Time) (orientation.Driver, io.Closer, error) {
	if sc.Driver == config.DriverSim {
		return &sim.IMU{YawRateDPS: sc.Sim.YawRateDPS, MagDipDeg: 60, Now: now}, nil, nil
	}

	bus, err := i2c.Open(i2c.BusPath(sc.I2CBus))
	if err != nil {
		return nil, nil, err
	}
	addr := sc.Address
	var drv orientation.Driver
	switch sc.Driver {
	case config.DriverMPU6050:
		if addr == 0 {
			addr = mpu6050.DefaultAddress()
		}
		drv, err = mpu6050.New(bus.Dev(addr))
	case config.DriverBNO055:
		if addr == 0 {
			addr = bno055.DefaultAddress()
		}
		drv, err = bno055.New(bus.Dev(addr))
	default:
		err = fmt.Errorf("unknown sensor driver %q", sc.Driver)
	}
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("%s on %s at 0x%02X: %w", sc.Driver, bus.Path(), addr, err)
	}
	return drv, bus, nil
}

// step runs one sensor cycle and forwards any new reading.
func (r *nodeRuntime) step() {
	data, ok := r.sensor.Poll()
	now := r.now()
	r.trackStatus(r.sensor.Status(), now)
	if ok {
		r.publish(data.Values, now)
	}
	for _, rs := range r.rel {
		if d, ok := rs.Poll(); ok {
			r.send(message.New(r.cfg.Node.Bodypart, d.Type, d.Values[:]), now)
		}
	}
}

func (r *nodeRuntime) trackStatus(st orientation.Status, now time.Time) {
	if err := r.led.Update(st, now); err != nil {
		r.log.WithError(err).Debug("status led update failed")
	}
	if st == r.lastStatus {
		return
	}
	// A reconnected sensor starts a new filter run, so start a new session.
	if r.rec != nil && r.lastStatus == orientation.StatusNotAccessible {
		if r.recFresh {
			r.recFresh = false
		} else if err := r.rec.WriteStart(); err != nil {
			r.log.WithError(err).Warn("record start marker failed")
		}
	}
	r.lastStatus = st
	r.gate.Reset()
	r.status.SetSensorStatus(st.String())
	if st != orientation.StatusWorking {
		snap := web.OrientationSnapshot{Valid: false, Status: st.String()}
		r.status.SetOrientation(snap)
		r.hub.Publish(snap)
	}
}

func (r *nodeRuntime) publish(values [4]float64, now time.Time) {
	if r.gate.Allow(values[:]) {
		r.send(message.New(r.cfg.Node.Bodypart, orientation.TypeOrientationAbs, values[:]), now)
	}

	snap := orientationSnapshot(values, orientation.StatusWorking, now)
	r.status.SetOrientation(snap)
	r.hub.Publish(snap)
}

func (r *nodeRuntime) send(msg message.Message, now time.Time) {
	msg.Player = r.cfg.Node.Player
	payload, err := message.Encode([]message.Message{msg})
	if err != nil {
		r.log.WithError(err).Error("message encode failed")
		return
	}
	err = r.sender.Send(payload)
	r.status.MarkSend(now.UTC(), err)
	switch {
	case err != nil && !r.sendFailing:
		r.sendFailing = true
		r.log.WithError(err).Warn("send to host failed")
	case err == nil && r.sendFailing:
		r.sendFailing = false
		r.log.Info("send to host recovered")
	}
}

func orientationSnapshot(values [4]float64, st orientation.Status, now time.Time) web.OrientationSnapshot {
	e := linalg.QuaternionFromValues(values).EulerAngles().Degrees()
	return web.OrientationSnapshot{
		Valid:         true,
		Status:        st.String(),
		Quaternion:    values,
		RollDeg:       e.Roll,
		PitchDeg:      e.Pitch,
		YawDeg:        e.Yaw,
		LastUpdateUTC: now.UTC().Format(time.RFC3339Nano),
	}
}

func (r *nodeRuntime) record(s ahrs.Sample) {
	if err := r.rec.WriteSample(s); err != nil {
		if !r.recFailing {
			r.log.WithError(err).Warn("record sample failed")
		}
		r.recFailing = true
		return
	}
	r.recFailing = false
}

// tickInterval polls faster than the read interval so reads are not
// delayed by a full tick of jitter.
func tickInterval(readInterval time.Duration) time.Duration {
	d := readInterval / 4
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (r *nodeRuntime) run(ctx context.Context) error {
	t := time.NewTicker(tickInterval(r.cfg.Sensor.ReadInterval))
	defer t.Stop()

	r.sensor.Init()
	for _, rs := range r.rel {
		rs.Init()
	}
	r.trackStatus(r.sensor.Status(), r.now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.step()
		}
	}
}

// runReplay feeds a recorded sample log through a fresh filter and sends
// the results as if they came from the live sensor.
func (r *nodeRuntime) runReplay(ctx context.Context, sleeper replay.Sleeper) error {
	recs, err := replay.ReadFile(r.cfg.Replay.Path)
	if err != nil {
		return err
	}
	filter, err := ahrs.New(fusionConfig(r.cfg.AHRS))
	if err != nil {
		return err
	}
	if sleeper == nil {
		sleeper = ctxSleeper{ctx: ctx}
	}
	r.trackStatus(orientation.StatusWorking, r.now())

	return replay.Play(recs, r.cfg.Replay.Speed, r.cfg.Replay.Loop, sleeper, func(s ahrs.Sample, start bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if start {
			filter.Init(linalg.IdentityQuaternion())
		}
		if err := filter.Update(s); err != nil {
			r.log.WithError(err).Debug("replay sample skipped")
			return nil
		}
		q, err := filter.Quaternion()
		if err != nil {
			return err
		}
		r.publish(q.Values(), r.now())
		return nil
	})
}

type ctxSleeper struct{ ctx context.Context }

func (s ctxSleeper) Sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
	case <-t.C:
	}
}

func (r *nodeRuntime) closeRecording() {
	if r.rec == nil {
		return
	}
	if err := r.rec.Close(); err != nil {
		r.log.WithError(err).Warn("record close failed")
	}
	r.rec = nil
}

func (r *nodeRuntime) Close() {
	r.closeRecording()
	if err := r.led.Close(); err != nil {
		r.log.WithError(err).Debug("status led close failed")
	}
	if err := r.sender.Close(); err != nil {
		r.log.WithError(err).Debug("sender close failed")
	}
}

// run wires the configured driver, host link and optional surfaces, then
// polls until ctx is done.
func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer, log logrus.FieldLogger) error {
	snd, err := udp.NewSender(cfg.Host.Dest)
	if err != nil {
		return err
	}

	var led statusled.LED
	if cfg.StatusLED.Enable {
		l, err := statusled.Open(cfg.StatusLED.GPIO)
		if err != nil {
			log.WithError(err).Warn("status led unavailable")
		} else {
			led = l
		}
	}

	cleanup := func() {
		_ = snd.Close()
		if led != nil {
			_ = led.Close()
		}
	}

	deps := runtimeDeps{sender: snd, led: led, status: web.NewStatus(), hub: web.NewHub()}
	if !cfg.Replay.Enable {
		drv, closer, err := openDriver(cfg.Sensor, time.Now)
		if err != nil {
			cleanup()
			return err
		}
		if closer != nil {
			defer closer.Close()
		}
		deps.driver = drv
	}

	rt, err := newNodeRuntime(cfg, deps, log)
	if err != nil {
		cleanup()
		return err
	}
	defer rt.Close()

	if cfg.Web.Enable {
		go func() {
			if err := web.Serve(ctx, cfg.Web.Listen, deps.status, deps.hub, logs, log); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("web server stopped")
			}
		}()
		log.WithField("listen", cfg.Web.Listen).Info("web ui enabled")
	}

	if cfg.Replay.Enable {
		log.WithField("path", cfg.Replay.Path).Info("replaying sample log")
		return rt.runReplay(ctx, nil)
	}
	return rt.run(ctx)
}
