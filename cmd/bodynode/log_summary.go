package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"bodynodes/internal/replay"
)

type logSummary struct {
	Segments    int
	Samples     int
	WithMag     int
	MaxDuration time.Duration
	MaxGap      time.Duration
	MeanPeriod  time.Duration
	// Backwards counts samples whose timestamp did not advance.
	Backwards int
}

func summarizeSampleLog(records []replay.Record) logSummary {
	var s logSummary

	var first, last uint64
	inSegment := false
	var periodSum time.Duration
	periods := 0

	for _, r := range records {
		if r.Start {
			inSegment = false
			continue
		}
		ts := r.Sample.TimestampMs
		s.Samples++
		if r.Sample.Mag != nil {
			s.WithMag++
		}
		if !inSegment {
			s.Segments++
			inSegment = true
			first, last = ts, ts
			continue
		}
		if ts <= last {
			s.Backwards++
		} else {
			gap := time.Duration(ts-last) * time.Millisecond
			if gap > s.MaxGap {
				s.MaxGap = gap
			}
			periodSum += gap
			periods++
		}
		if ts > last {
			last = ts
		}
		if d := time.Duration(last-first) * time.Millisecond; d > s.MaxDuration {
			s.MaxDuration = d
		}
	}
	if periods > 0 {
		s.MeanPeriod = periodSum / time.Duration(periods)
	}
	return s
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}

	s := summarizeSampleLog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "samples: %d\n", s.Samples)
	fmt.Fprintf(w, "samples_with_mag: %d\n", s.WithMag)
	fmt.Fprintf(w, "non_increasing_timestamps: %d\n", s.Backwards)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "mean_period: %s\n", s.MeanPeriod)
	fmt.Fprintf(w, "max_gap: %s\n", s.MaxGap)
	return nil
}
