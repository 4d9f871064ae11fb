package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiberry/internal/events"
	"hiberry/internal/model"
	"hiberry/internal/planner"
	"hiberry/internal/store"
)

// flakyStore fails BulkUpdate for one driver.
type flakyStore struct {
	*store.Memory
	failDriver int
}

func (s flakyStore) BulkUpdate(ctx context.Context, orders []model.Order) error {
	if len(orders) > 0 && orders[0].Driver == s.failDriver {
		return &store.Error{StatusCode: 503, Message: "throughput exceeded"}
	}
	return s.Memory.BulkUpdate(ctx, orders)
}

func seedMonday(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	for _, tc := range []struct {
		window model.DeliveryWindow
		loc    model.Coordinate
	}{
		{model.Morning, northwest},
		{model.Morning, northwest},
		{model.Morning, southwest},
		{model.Afternoon, northeast},
		{model.Afternoon, southeast},
		{model.Afternoon, southeast},
	} {
		_, err := svc.Create(ctx, orderIn(monday, tc.window, at(tc.loc)), "maria")
		require.NoError(t, err)
	}
}

func TestSchedule(t *testing.T) {
	f := newFixture(t, planner.DefaultRules())
	seedMonday(t, f.svc)
	sub := f.broker.Subscribe(monday)
	defer f.broker.Unsubscribe(monday, sub)

	res, err := f.svc.Schedule(context.Background(), model.ScheduleRequest{Date: monday, AvailableDrivers: []int{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, model.Date(monday), res.Date)
	assert.Equal(t, 6, res.Scheduled)
	assert.Empty(t, res.Failed)
	assert.Len(t, res.Partitions, 4)

	all, err := f.store.FetchByDate(context.Background(), monday)
	require.NoError(t, err)
	seqs := map[string][]int{}
	for _, o := range all {
		assert.Equal(t, model.StatusProgrammed, o.Status, o.ID)
		require.NotNil(t, o.Sequence, o.ID)
		key := string(rune('0'+o.Driver)) + string(o.DeliveryWindow)
		seqs[key] = append(seqs[key], *o.Sequence)
	}
	for key, got := range seqs {
		want := make([]int, len(got))
		for i := range want {
			want[i] = i
		}
		assert.ElementsMatch(t, want, got, key)
	}

	n := 0
	for len(sub) > 0 {
		if evt := <-sub; evt.Type == events.PartitionScheduled {
			n++
		}
	}
	assert.Equal(t, 4, n)
}

func TestScheduleSingleDriverTakesUnassigned(t *testing.T) {
	f := newFixture(t, planner.DefaultRules())
	ctx := context.Background()
	zeroDriver := model.Order{
		ID: "manual", DeliveryDate: monday, DeliveryWindow: model.Morning, Location: at(southwest),
		Status: model.StatusCreated, Source: model.SourceApp,
	}
	require.NoError(t, f.store.Put(ctx, zeroDriver))
	_, err := f.svc.Create(ctx, orderIn(monday, model.Morning, at(northwest)), "maria")
	require.NoError(t, err)

	res, err := f.svc.Schedule(ctx, model.ScheduleRequest{Date: monday, AvailableDrivers: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scheduled)

	got, err := f.store.Get(ctx, monday, "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Driver)
	assert.Equal(t, model.StatusProgrammed, got.Status)
}

func TestSchedulePartialFailure(t *testing.T) {
	f := newFixture(t, planner.DefaultRules())
	seedMonday(t, f.svc)
	f.svc.store = flakyStore{Memory: f.store, failDriver: 2}

	res, err := f.svc.Schedule(context.Background(), model.ScheduleRequest{Date: monday, AvailableDrivers: []int{1, 2}})
	require.Error(t, err)

	var pe *planner.PartitionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Driver)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.StatusCode)

	assert.Len(t, res.Failed, 2)
	assert.Len(t, res.Partitions, 2)
	assert.Equal(t, 3, res.Scheduled)

	all, _ := f.store.FetchByDate(context.Background(), monday)
	for _, o := range all {
		if o.Driver == 1 {
			assert.Equal(t, model.StatusProgrammed, o.Status)
		} else {
			assert.Equal(t, model.StatusCreated, o.Status)
		}
	}
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t, planner.DefaultRules())
	cases := map[string]model.ScheduleRequest{
		"bad date":   {Date: "2024/01/08", AvailableDrivers: []int{1}},
		"no drivers": {Date: monday},
		"duplicate":  {Date: monday, AvailableDrivers: []int{1, 1}},
		"unknown":    {Date: monday, AvailableDrivers: []int{3}},
		"zero":       {Date: monday, AvailableDrivers: []int{0}},
	}
	for name, req := range cases {
		_, err := f.svc.Schedule(context.Background(), req)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), name)
	}
}
