package util

import (
	"time"

	"github.com/hako/durafmt"
)

var (
	UpSince = time.Now()
)

func UptimeInString() string {
	return DurationInString(time.Since(UpSince))
}

// DurationInString renders d in its two largest units, e.g. "2 hours 5 minutes".
func DurationInString(d time.Duration) string {
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

func NowInSec() float64 {
	return TimeInSec(time.Now())
}

func TimeInSec(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1000000.0
}

// t2 is now, t1 is time base
func UptimeInSec(t2 float64, t1 float64) float64 {
	if t2 <= t1 {
		return 0.01
	}
	return t2 - t1
}

func SystemUptimeInSec() float64 {
	return UptimeInSec(NowInSec(), TimeInSec(UpSince))
}
