package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

type Status struct {
	startUnixNano int64
	messagesSent  uint64
	sendErrors    uint64
	lastSendNano  int64
	bodypart      atomic.Value // string
	hostDest      atomic.Value // string
	driver        atomic.Value // string
	sensorStatus  atomic.Value // string
	orientation   atomic.Value // OrientationSnapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.bodypart.Store("")
	s.hostDest.Store("")
	s.driver.Store("")
	s.sensorStatus.Store("")
	s.orientation.Store(OrientationSnapshot{})
	return s
}

func (s *Status) SetStatic(bodypart, hostDest, driver string) {
	if bodypart != "" {
		s.bodypart.Store(bodypart)
	}
	if hostDest != "" {
		s.hostDest.Store(hostDest)
	}
	if driver != "" {
		s.driver.Store(driver)
	}
}

func (s *Status) SetSensorStatus(st string) { s.sensorStatus.Store(st) }

func (s *Status) SetOrientation(o OrientationSnapshot) { s.orientation.Store(o) }

// MarkSend records the outcome of one send to the host.
func (s *Status) MarkSend(nowUTC time.Time, err error) {
	if err != nil {
		atomic.AddUint64(&s.sendErrors, 1)
		return
	}
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.AddUint64(&s.messagesSent, 1)
	atomic.StoreInt64(&s.lastSendNano, nowUTC.UnixNano())
}

type BuildInfo struct {
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

type StatusSnapshot struct {
	Service           string              `json:"service"`
	NowUTC            string              `json:"now_utc"`
	UptimeSec         int64               `json:"uptime_sec"`
	Bodypart          string              `json:"bodypart"`
	HostDest          string              `json:"host_dest"`
	Driver            string              `json:"driver"`
	SensorStatus      string              `json:"sensor_status"`
	MessagesSentTotal uint64              `json:"messages_sent_total"`
	SendErrorsTotal   uint64              `json:"send_errors_total"`
	LastSendUTC       string              `json:"last_send_utc,omitempty"`
	Orientation       OrientationSnapshot `json:"orientation"`
	Build             BuildInfo           `json:"build"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	lastSend := atomic.LoadInt64(&s.lastSendNano)

	snap := StatusSnapshot{
		Service:           "bodynode",
		NowUTC:            nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:         int64(nowUTC.Sub(start).Seconds()),
		Bodypart:          s.bodypart.Load().(string),
		HostDest:          s.hostDest.Load().(string),
		Driver:            s.driver.Load().(string),
		SensorStatus:      s.sensorStatus.Load().(string),
		MessagesSentTotal: atomic.LoadUint64(&s.messagesSent),
		SendErrorsTotal:   atomic.LoadUint64(&s.sendErrors),
		Orientation:       s.orientation.Load().(OrientationSnapshot),
		Build:             buildInfo(),
	}
	if lastSend != 0 {
		snap.LastSendUTC = time.Unix(0, lastSend).UTC().Format(time.RFC3339Nano)
	}
	return snap
}

func buildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		}
	}
	return out
}
