package tracker

import "time"

// Bucket is one polling frequency class
type Bucket struct {
	Name   string
	MaxAge time.Duration // zero means unbounded
	Period time.Duration
}

// Policy holds every tunable of the scheduler
type Policy struct {
	Window time.Duration

	// Buckets are ordered by MaxAge; the first whose bound exceeds the
	// Signal's age wins. The HotBucket also captures any Signal whose
	// gain exceeds HotGainPct.
	Buckets    []Bucket
	HotBucket  string
	HotGainPct float64

	Checkpoints []int // minutes after receipt
	Thresholds  []float64
	Milestones  []int // cumulative gain percent

	Pacing        time.Duration
	SweepInterval time.Duration
}

// DefaultPolicy returns the stock tracking policy
func DefaultPolicy() Policy {
	return Policy{
		Window: 72 * time.Hour,
		Buckets: []Bucket{
			{Name: "fresh", MaxAge: 5 * time.Minute, Period: 30 * time.Second},
			{Name: "frequent", MaxAge: time.Hour, Period: time.Minute},
			{Name: "moderate", MaxAge: 24 * time.Hour, Period: 5 * time.Minute},
			{Name: "infrequent", MaxAge: 48 * time.Hour, Period: 15 * time.Minute},
			{Name: "rare", Period: 30 * time.Minute},
		},
		HotBucket:     "frequent",
		HotGainPct:    20,
		Checkpoints:   []int{5, 10, 15, 30, 60},
		Thresholds:    []float64{2, 3, 5, 10},
		Milestones:    []int{50, 100},
		Pacing:        500 * time.Millisecond,
		SweepInterval: 10 * time.Second,
	}
}

// BucketFor classifies a Signal by age and current gain percent
func (p Policy) BucketFor(age time.Duration, gainPct float64) Bucket {
	for _, b := range p.Buckets {
		if b.Name == p.HotBucket && gainPct > p.HotGainPct {
			return b
		}
		if b.MaxAge == 0 || age < b.MaxAge {
			return b
		}
	}
	if len(p.Buckets) == 0 {
		return Bucket{Name: "default", Period: time.Minute}
	}
	return p.Buckets[len(p.Buckets)-1]
}
