package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/smallbiznis/subtrack/internal/period"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baghdad = time.FixedZone("Asia/Baghdad", 3*60*60)

type fakeSubscribers struct {
	subdomain.Service

	clock *clock.FakeClock
	byEnd map[period.Date][]subdomain.Subscriber
	err   error
}

func (f *fakeSubscribers) Today() period.Date {
	return period.Today(f.clock.Now(), f.clock.Location())
}

func (f *fakeSubscribers) ListDueOn(_ context.Context, day period.Date) ([]subdomain.Subscriber, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byEnd[day], nil
}

type message struct {
	recipient string
	text      string
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []message
	failFor  string
}

func (n *fakeNotifier) Send(_ context.Context, recipient, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if recipient == n.failFor {
		return errors.New("unreachable")
	}
	n.messages = append(n.messages, message{recipient: recipient, text: text})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newScheduler(t *testing.T, now time.Time, cfg Config) (*Scheduler, *fakeSubscribers, *fakeNotifier, *clock.FakeClock) {
	t.Helper()
	fc := clock.NewFakeClock(now)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	subs := &fakeSubscribers{clock: fc, byEnd: map[period.Date][]subdomain.Subscriber{}}
	notifier := &fakeNotifier{}
	sched, err := New(Params{
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fc,
		Subscribers: subs,
		Notifier:    notifier,
		Config:      cfg,
	})
	require.NoError(t, err)
	return sched, subs, notifier, fc
}

func subscriber(no string, end period.Date) subdomain.Subscriber {
	return subdomain.Subscriber{CustomerNo: no, Name: "Name " + no, Plan: "basic", EndDate: period.DateValue(end), Status: subdomain.StatusActive}
}

func TestSweepReportsDueInLeadDaysAndToday(t *testing.T) {
	sched, subs, notifier, _ := newScheduler(t, time.Date(2025, time.October, 5, 9, 0, 0, 0, baghdad), Config{
		LeadDays:   3,
		Recipients: []string{"100", "200"},
	})
	today := period.NewDate(2025, time.October, 5)
	subs.byEnd[today] = []subdomain.Subscriber{subscriber("T1", today)}
	subs.byEnd[today.AddDays(3)] = []subdomain.Subscriber{subscriber("S1", today.AddDays(3)), subscriber("S2", today.AddDays(3))}
	subs.byEnd[today.AddDays(1)] = []subdomain.Subscriber{subscriber("X1", today.AddDays(1))}

	report, err := sched.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.DueSoon, 2)
	assert.Len(t, report.DueToday, 1)

	require.Equal(t, 2, notifier.count())
	text := notifier.messages[0].text
	assert.Contains(t, text, "Due in 3 days (2)")
	assert.Contains(t, text, "S1")
	assert.Contains(t, text, "Due today (1)")
	assert.Contains(t, text, "T1")
	assert.NotContains(t, text, "X1")
	assert.Equal(t, text, notifier.messages[1].text)
}

func TestSweepSendsEmptyReport(t *testing.T) {
	sched, _, notifier, _ := newScheduler(t, time.Date(2025, time.October, 5, 9, 0, 0, 0, baghdad), Config{
		LeadDays:   3,
		Recipients: []string{"100"},
	})
	_, err := sched.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.messages[0].text, "- none")
}

func TestSweepContinuesPastFailedRecipient(t *testing.T) {
	sched, _, notifier, _ := newScheduler(t, time.Date(2025, time.October, 5, 9, 0, 0, 0, baghdad), Config{
		LeadDays:   3,
		Recipients: []string{"bad", "good"},
	})
	notifier.failFor = "bad"

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), jobExpirySweep)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "good", notifier.messages[0].recipient)
}

func TestSweepRecordsDeliveryMetrics(t *testing.T) {
	sched, _, notifier, _ := newScheduler(t, time.Date(2025, time.October, 5, 9, 0, 0, 0, baghdad), Config{
		LeadDays:   3,
		Recipients: []string{"bad", "good"},
	})
	registry := prometheus.NewRegistry()
	sched.metrics = metrics.NewForRegistry(registry, metrics.Config{})
	notifier.failFor = "bad"

	_, err := sched.Sweep(context.Background())
	require.Error(t, err)

	for result, want := range map[string]float64{metrics.DeliverySent: 1, metrics.DeliveryFailed: 1} {
		got, err := metrics.CounterValue(registry, "subtrack_notification_deliveries_total", map[string]string{
			"kind":   deliveryKind,
			"result": result,
		})
		require.NoError(t, err)
		assert.Equal(t, want, got, result)
	}
}

func TestSweepSurfacesStorageErrors(t *testing.T) {
	sched, subs, notifier, _ := newScheduler(t, time.Date(2025, time.October, 5, 9, 0, 0, 0, baghdad), Config{Recipients: []string{"1"}})
	subs.err = subdomain.ErrStorageUnavailable

	err := sched.RunOnce(context.Background())
	assert.ErrorIs(t, err, subdomain.ErrStorageUnavailable)
	assert.Zero(t, notifier.count())
}

func TestNextRun(t *testing.T) {
	sched, _, _, _ := newScheduler(t, time.Date(2025, time.October, 5, 9, 0, 0, 0, baghdad), Config{Hour: 9, Minute: 30})

	before := time.Date(2025, time.October, 5, 8, 0, 0, 0, baghdad)
	assert.Equal(t, time.Date(2025, time.October, 5, 9, 30, 0, 0, baghdad), sched.NextRun(before))

	exact := time.Date(2025, time.October, 5, 9, 30, 0, 0, baghdad)
	assert.Equal(t, time.Date(2025, time.October, 6, 9, 30, 0, 0, baghdad), sched.NextRun(exact))

	utc := time.Date(2025, time.October, 31, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.November, 1, 9, 30, 0, 0, baghdad), sched.NextRun(utc))
}

func TestRunForeverSweepsDaily(t *testing.T) {
	sched, _, notifier, fc := newScheduler(t, time.Date(2025, time.October, 5, 8, 0, 0, 0, baghdad), Config{
		Hour:       9,
		LeadDays:   3,
		Recipients: []string{"1"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.RunForever(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return fc.Pending() == 1 }, time.Second, time.Millisecond)
	fc.Advance(30 * time.Minute)
	assert.Zero(t, notifier.count())

	fc.Advance(30 * time.Minute)
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return fc.Pending() == 1 }, time.Second, time.Millisecond)
	fc.Advance(24 * time.Hour)
	require.Eventually(t, func() bool { return notifier.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop")
	}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
