package correlation

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lox/sapweather/internal/models"
)

func TestCoalescer_ConcurrentCallsComputeOnce(t *testing.T) {
	c := NewCoalescer(time.Minute)
	key := Key{SeasonID: "2026", Lat: 44.26, Lng: -72.58, Unit: models.Fahrenheit}

	var calls int32
	release := make(chan struct{})
	compute := func() (*Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Result{TotalDays: 12}, nil
	}

	const callers = 5
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Do(key, compute)
			if err != nil {
				t.Errorf("Do: %v", err)
			}
			results[i] = r
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("compute calls = %d, want 1", got)
	}
	for i, r := range results {
		if r != results[0] {
			t.Errorf("results[%d] is a different *Result", i)
		}
	}

	// Subsequent calls within the TTL are served from the cache.
	r, err := c.Do(key, compute)
	if err != nil || r != results[0] {
		t.Errorf("cached Do = %p, %v; want %p", r, err, results[0])
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("compute calls after cached hit = %d, want 1", got)
	}
}

func TestCoalescer_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewCoalescer(0)
	c.SetClock(func() time.Time { return now })
	key := Key{SeasonID: "s1", Lat: 1, Lng: 2, Unit: models.Celsius}

	var calls int
	compute := func() (*Result, error) {
		calls++
		return &Result{TotalDays: calls}, nil
	}

	first, _ := c.Do(key, compute)
	now = now.Add(DefaultTTL - time.Second)
	if r, _ := c.Do(key, compute); r != first {
		t.Error("result recomputed before TTL elapsed")
	}

	now = now.Add(2 * time.Second)
	second, _ := c.Do(key, compute)
	if second == first || calls != 2 {
		t.Errorf("calls = %d, want recompute after TTL", calls)
	}
}

func TestCoalescer_FailureNotCached(t *testing.T) {
	c := NewCoalescer(time.Minute)
	key := Key{SeasonID: "s1", Lat: 1, Lng: 2, Unit: models.Fahrenheit}
	boom := errors.New("yield service unavailable")

	if _, err := c.Do(key, func() (*Result, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after failure, want 0", c.Len())
	}

	r, err := c.Do(key, func() (*Result, error) { return &Result{TotalDays: 3}, nil })
	if err != nil || r.TotalDays != 3 {
		t.Errorf("retry = %+v, %v", r, err)
	}
}

func TestCoalescer_KeysAreIndependent(t *testing.T) {
	c := NewCoalescer(time.Minute)
	f := Key{SeasonID: "s1", Lat: 1, Lng: 2, Unit: models.Fahrenheit}
	cel := f
	cel.Unit = models.Celsius

	rf, _ := c.Do(f, func() (*Result, error) { return &Result{Unit: models.Fahrenheit}, nil })
	rc, _ := c.Do(cel, func() (*Result, error) { return &Result{Unit: models.Celsius}, nil })
	if rf == rc || rc.Unit != models.Celsius {
		t.Error("unit must be part of the cache key")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	c.Purge(f)
	if c.Len() != 1 {
		t.Errorf("Len after Purge = %d, want 1", c.Len())
	}
}
