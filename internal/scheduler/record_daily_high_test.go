package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedgebook/internal/events"
	testutil "github.com/aristath/hedgebook/internal/testing"
)

func TestRecordDailyHighJob_Name(t *testing.T) {
	job := NewRecordDailyHighJob(nil, nil, zerolog.Nop())
	assert.Equal(t, "record_daily_high", job.Name())
}

func TestRecordDailyHighJob_RecordsOncePerHigh(t *testing.T) {
	h := newHolder(testutil.HedgedDocument())
	bus := events.NewBus(zerolog.Nop())
	var got []*events.DailyRecordUpdatedData
	bus.Subscribe(events.DailyRecordUpdated, func(e *events.Event) {
		got = append(got, e.Data.(*events.DailyRecordUpdatedData))
	})
	job := NewRecordDailyHighJob(h, bus, zerolog.Nop())

	require.NoError(t, job.Run())
	records := h.state.DailyRecords()
	require.Len(t, records, 1)
	assert.Equal(t, h.state.Today(), records[0].Date)
	require.Len(t, got, 1)
	assert.Equal(t, records[0].Date, got[0].Date)
	assert.True(t, records[0].MaxPL.Equal(got[0].MaxPL))

	// Same P&L is not a new high.
	require.NoError(t, job.Run())
	assert.Len(t, got, 1)
	assert.Len(t, h.state.DailyRecords(), 1)
}

func TestRecordDailyHighJob_HigherPLReplacesRecord(t *testing.T) {
	h := newHolder(testutil.HedgedDocument())
	job := NewRecordDailyHighJob(h, nil, zerolog.Nop())

	require.NoError(t, job.Run())
	before := h.state.DailyRecords()[0].MaxPL

	price := testutil.Dec("260")
	require.NoError(t, h.state.ApplyQuotes(&price, nil))
	require.NoError(t, job.Run())

	records := h.state.DailyRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].MaxPL.GreaterThan(before))
}
