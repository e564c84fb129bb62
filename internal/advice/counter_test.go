package advice

import (
	"sync"
	"testing"
)

func TestCounter_Basics(t *testing.T) {
	c := NewCounter(3)
	if c.Exceeded() {
		t.Error("fresh counter exceeded")
	}
	if got := c.Increment(); got != 1 {
		t.Errorf("first increment: got %d", got)
	}
	c.Increment()
	if c.Exceeded() {
		t.Error("exceeded at 2/3")
	}
	c.Increment()
	if !c.Exceeded() {
		t.Error("not exceeded at 3/3")
	}
	if c.Count() != 3 {
		t.Errorf("count: got %d", c.Count())
	}
	c.Reset()
	if c.Count() != 0 || c.Exceeded() {
		t.Error("reset did not clear counter")
	}
}

func TestCounter_DefaultLimit(t *testing.T) {
	if got := NewCounter(0).Limit(); got != DefaultDailyLimit {
		t.Errorf("limit: got %d, want %d", got, DefaultDailyLimit)
	}
	if got := NewCounter(-5).Limit(); got != DefaultDailyLimit {
		t.Errorf("limit: got %d, want %d", got, DefaultDailyLimit)
	}
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewCounter(DefaultDailyLimit)
	const workers = 16
	const each = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()

	if got := c.Count(); got != workers*each {
		t.Errorf("count: got %d, want %d", got, workers*each)
	}
	if !c.Exceeded() {
		t.Error("counter past the limit not exceeded")
	}
}
