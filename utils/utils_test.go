package utils

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundToIsHalfEven(t *testing.T) {
	cases := []struct {
		in       string
		decimals int32
		want     string
	}{
		{"0.125", 2, "0.12"},
		{"0.135", 2, "0.14"},
		{"2.5", 0, "2"},
		{"3.5", 0, "4"},
		{"0.000000015", 8, "0.00000002"},
		{"0.000000025", 8, "0.00000002"},
	}
	for _, c := range cases {
		got := RoundTo(decimal.RequireFromString(c.in), c.decimals)
		assert.True(t, got.Equal(decimal.RequireFromString(c.want)), "%s@%d: got %s want %s", c.in, c.decimals, got, c.want)
	}
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.NewFromInt(100), decimal.NewFromInt(5), 6)
	assert.True(t, got.Equal(decimal.NewFromInt(5)))

	// 2.5% of 0.00000001 BTC is below one satoshi and rounds to zero.
	got = Percent(decimal.RequireFromString("0.00000001"), decimal.RequireFromString("2.5"), 8)
	assert.True(t, got.IsZero())

	// 5% of 0.3 USDT = 0.015 exactly.
	got = Percent(decimal.RequireFromString("0.3"), decimal.NewFromInt(5), 6)
	assert.Equal(t, "0.015", got.String())
}

func TestBaseUnits(t *testing.T) {
	wei := ToBaseUnits(decimal.RequireFromString("1.5"), 18)
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, wei.Cmp(want))

	back := FromBaseUnits(wei, 18)
	assert.True(t, back.Equal(decimal.RequireFromString("1.5")))

	assert.Equal(t, int64(123456), ToBaseUnits(decimal.RequireFromString("0.1234569"), 6).Int64())
	assert.True(t, FromBaseUnits(nil, 6).IsZero())
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("order:1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, km.size())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}

	unlockA()
	unlockA()
	require.Equal(t, 0, km.size())
}
