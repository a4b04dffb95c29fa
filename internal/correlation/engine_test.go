package correlation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-tracker/internal/signal"
	"signal-tracker/internal/storage/memory"
)

const (
	caA = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	caB = "9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT"
)

var thresholds = []float64{2, 3, 5, 10}

func setup(t *testing.T) (*Engine, *memory.SignalStore) {
	t.Helper()
	st := memory.NewSignalStore()
	e := New(st, thresholds, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC) }
	return e, st
}

func add(t *testing.T, st *memory.SignalStore, addr string, msgID int64, entryMC float64) int64 {
	t.Helper()
	s := signal.New(signal.Meta{ChannelID: -1001, MessageID: msgID, ReceivedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)})
	s.Address = addr
	s.TokenName = "TKN"
	s.EntryMC = entryMC
	s.PeakMC = entryMC
	id, err := st.Append(context.Background(), s)
	require.NoError(t, err)
	return id
}

func get(t *testing.T, st *memory.SignalStore, id int64) *signal.Signal {
	t.Helper()
	s, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestCorrelateByAddress(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	res, err := e.Correlate(context.Background(), Target{}, &signal.AlertEvent{
		Multiplier: 2, Address: caA, Elapsed: "5m", GainMultiplier: 2, PeakMultiplier: 2.4,
	})
	require.NoError(t, err)
	assert.Equal(t, Applied, res)

	s := get(t, st, id)
	assert.Equal(t, 2.0, s.LastAlert)
	assert.Contains(t, s.AlertTimes, 2.0)
	assert.InDelta(t, 240_000.0, s.PeakMC, 1e-6)
	assert.InDelta(t, 2.4, s.PeakMultiplier, 1e-9)
	assert.Contains(t, s.History, "2x alert in 5m")
}

func TestCorrelateReplyTakesPrecedence(t *testing.T) {
	e, st := setup(t)
	replied := add(t, st, caA, 10, 100_000)
	other := add(t, st, caB, 11, 100_000)

	// The alert names caB but replies to the caA message
	res, err := e.Correlate(context.Background(), Target{ChannelID: -1001, ReplyTo: 10},
		&signal.AlertEvent{Multiplier: 3, Address: caB})
	require.NoError(t, err)
	assert.Equal(t, Applied, res)

	assert.Equal(t, 3.0, get(t, st, replied).LastAlert)
	assert.Zero(t, get(t, st, other).LastAlert)
}

func TestCorrelateReplyWithUnknownChannel(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	res, err := e.Correlate(context.Background(), Target{ReplyTo: 10}, &signal.AlertEvent{Multiplier: 2})
	require.NoError(t, err)
	assert.Equal(t, Applied, res)
	assert.Equal(t, 2.0, get(t, st, id).LastAlert)
}

func TestCorrelateFallsBackToAddressWhenReplyMisses(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	res, err := e.Correlate(context.Background(), Target{ChannelID: -1001, ReplyTo: 999},
		&signal.AlertEvent{Multiplier: 2, Address: caA})
	require.NoError(t, err)
	assert.Equal(t, Applied, res)
	assert.Equal(t, 2.0, get(t, st, id).LastAlert)
}

func TestCorrelateLowerThresholdIsNoOpButPeakRises(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	_, err := e.Correlate(context.Background(), Target{}, &signal.AlertEvent{Multiplier: 5, Address: caA})
	require.NoError(t, err)
	five := get(t, st, id).AlertTimes[5]

	_, err = e.Correlate(context.Background(), Target{}, &signal.AlertEvent{
		Multiplier: 3, Address: caA, PeakMultiplier: 6,
	})
	require.NoError(t, err)

	s := get(t, st, id)
	assert.Equal(t, 5.0, s.LastAlert)
	assert.NotContains(t, s.AlertTimes, 3.0)
	assert.True(t, s.AlertTimes[5].Equal(five))
	assert.InDelta(t, 600_000.0, s.PeakMC, 1e-6)
	assert.InDelta(t, 6.0, s.PeakMultiplier, 1e-9)
	assert.Len(t, strings.Split(s.History, "\n"), 2)
}

func TestCorrelateNonThresholdMultiplier(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	_, err := e.Correlate(context.Background(), Target{}, &signal.AlertEvent{Multiplier: 4, Address: caA})
	require.NoError(t, err)

	s := get(t, st, id)
	assert.Equal(t, 4.0, s.LastAlert)
	assert.Empty(t, s.AlertTimes)
}

func TestCorrelatePeakNeverDrops(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	_, err := e.Correlate(context.Background(), Target{}, &signal.AlertEvent{Multiplier: 10, Address: caA})
	require.NoError(t, err)
	_, err = e.Correlate(context.Background(), Target{}, &signal.AlertEvent{Multiplier: 2, Address: caA, CurrentMC: 150_000})
	require.NoError(t, err)

	s := get(t, st, id)
	assert.InDelta(t, 1_000_000.0, s.PeakMC, 1e-6)
	assert.Equal(t, 10.0, s.LastAlert)
}

func TestCorrelateMissIsDiscarded(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	res, err := e.Correlate(context.Background(), Target{ReplyTo: 77}, &signal.AlertEvent{Multiplier: 2, Address: caB})
	assert.Equal(t, NotFound, res)
	assert.True(t, errors.Is(err, ErrNotFound))

	res, err = e.Correlate(context.Background(), Target{}, &signal.AlertEvent{Multiplier: 2})
	assert.Equal(t, NotFound, res)
	assert.True(t, errors.Is(err, ErrNotFound))

	s := get(t, st, id)
	assert.Zero(t, s.LastAlert)
	assert.Empty(t, s.History)
}

func TestCorrelateWithoutEntryUsesMultiplier(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 0)

	_, err := e.Correlate(context.Background(), Target{}, &signal.AlertEvent{Multiplier: 3, Address: caA, CurrentMC: 90_000})
	require.NoError(t, err)

	s := get(t, st, id)
	assert.Equal(t, 3.0, s.PeakMultiplier)
	assert.Equal(t, 90_000.0, s.PeakMC)
}

func TestConcurrentAlertsKeepEveryHistoryLine(t *testing.T) {
	e, st := setup(t)
	id := add(t, st, caA, 10, 100_000)

	mults := []float64{2, 3, 5, 10}
	var wg sync.WaitGroup
	for _, m := range mults {
		wg.Add(1)
		go func(m float64) {
			defer wg.Done()
			_, err := e.Correlate(context.Background(), Target{}, &signal.AlertEvent{Multiplier: m, Address: caA})
			assert.NoError(t, err)
		}(m)
	}
	wg.Wait()

	s := get(t, st, id)
	assert.Len(t, strings.Split(s.History, "\n"), len(mults))
	assert.Equal(t, 10.0, s.LastAlert)
	assert.InDelta(t, 1_000_000.0, s.PeakMC, 1e-6)
}
