package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeUsesVendorPrice(t *testing.T) {
	tr := NewTracker(map[string]float64{"qwen": 0.01, "doubao": 0.03})
	tr.Charge("recipe", "qwen")
	tr.Charge("image", "doubao")
	tr.Charge("image", "doubao")
	tr.Charge("publish", "unknown")

	assert.InDelta(t, 0.07, tr.Total(), 1e-9)
	assert.InDelta(t, 0.06, tr.Breakdown()["doubao"], 1e-9)
	assert.Len(t, tr.Records(), 4)
	assert.Equal(t, "recipe", tr.Records()[0].Stage)
}

func TestConcurrentChargesAreAllKept(t *testing.T) {
	tr := NewTracker(map[string]float64{"doubao": 0.5})
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Charge("image", "doubao")
		}()
	}
	wg.Wait()
	require.Len(t, tr.Records(), 64)
	assert.InDelta(t, 32.0, tr.Total(), 1e-9)
}

func TestResetKeepsPrices(t *testing.T) {
	tr := NewTracker(map[string]float64{"deepseek": 0.02})
	tr.Charge("content", "deepseek")
	tr.Reset()
	assert.Zero(t, tr.Total())
	assert.Empty(t, tr.Records())
	tr.Charge("content", "deepseek")
	assert.InDelta(t, 0.02, tr.Total(), 1e-9)
}

func TestSummaryString(t *testing.T) {
	tr := NewTracker(map[string]float64{"a": 1, "b": 2})
	tr.Charge("x", "b")
	tr.Charge("x", "a")
	s := tr.Summarize()
	assert.Equal(t, 2, s.Calls)
	assert.Equal(t, "total=3.0000 calls=2 [a=1.0000 b=2.0000]", s.String())
}

func TestSummarizeIsConsistentUnderConcurrentCharges(t *testing.T) {
	tr := NewTracker(map[string]float64{"doubao": 1, "deepseek": 2})
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				tr.Charge("image", "doubao")
			} else {
				tr.Charge("content", "deepseek")
			}
		}(i)
	}
	for i := 0; i < 50; i++ {
		s := tr.Summarize()
		var sum float64
		for _, v := range s.Breakdown {
			sum += v
		}
		assert.InDelta(t, s.Total, sum, 1e-9)
		assert.InDelta(t, s.Breakdown["doubao"]+s.Breakdown["deepseek"]/2, float64(s.Calls), 1e-9)
	}
	wg.Wait()
	assert.Equal(t, 200, tr.Summarize().Calls)
}
