package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	"github.com/smallbiznis/subtrack/internal/lock"
	"github.com/smallbiznis/subtrack/internal/period"
	"github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"github.com/smallbiznis/subtrack/internal/subscriber/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baghdad = time.FixedZone("Asia/Baghdad", 3*60*60)

type fakeReminders struct {
	mu       sync.Mutex
	armed    map[string]domain.Subscriber
	canceled []string
	err      error
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{armed: map[string]domain.Subscriber{}}
}

func (f *fakeReminders) Arm(_ context.Context, s domain.Subscriber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[s.CustomerNo] = s
	return f.err
}

func (f *fakeReminders) Cancel(_ context.Context, customerNo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, customerNo)
	f.canceled = append(f.canceled, customerNo)
	return f.err
}

// gatedReminders holds the first Cancel until release is closed.
type gatedReminders struct {
	*fakeReminders
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedReminders() *gatedReminders {
	return &gatedReminders{
		fakeReminders: newFakeReminders(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (g *gatedReminders) Cancel(ctx context.Context, customerNo string) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeReminders.Cancel(ctx, customerNo)
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	clock     *clock.FakeClock
	reminders *fakeReminders
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&domain.Subscriber{}, &domain.Payment{}))
	return conn
}

func newFixture(t *testing.T, today time.Time, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	conn := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{RenewalPolicy: period.PolicyCalendarMonth, SearchLimit: 50}
	for _, m := range mutate {
		m(&cfg)
	}
	fc := clock.NewFakeClock(today)
	reminders := newFakeReminders()
	svc := New(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repository.Provide(),
		Clock:     fc,
		Locker:    lock.NewKeyedMutex(),
		Config:    cfg,
		Reminders: reminders,
	}).(*Service)
	return &fixture{svc: svc, db: conn, clock: fc, reminders: reminders}
}

func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 10, 0, 0, 0, baghdad)
}

func date(year int, month time.Month, day int) period.Date {
	return period.NewDate(year, month, day)
}

func register(t *testing.T, f *fixture, fields domain.Fields) domain.Subscriber {
	t.Helper()
	res, err := f.svc.Register(context.Background(), fields)
	require.NoError(t, err)
	return res.Subscriber
}

func TestRenewFromLapsedEndDateStartsToday(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C001", "end_date": "2025-10-01", "amount_paid": "1000"})

	res, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C001", Months: 1, Paid: 5000})
	require.NoError(t, err)

	assert.Equal(t, "2025-11-05", res.Subscriber.EndDate.String())
	assert.Equal(t, int64(6000), res.Subscriber.AmountPaid)
	assert.Equal(t, domain.StatusActive, res.Subscriber.Status)
	assert.Equal(t, date(2025, time.October, 5), res.Base)
	assert.Equal(t, "2025-10-01", res.PreviousEnd.String())
	assert.Equal(t, int64(5000), res.Payment.Amount)
	assert.Equal(t, "manual", res.Payment.Method)
	assert.NotEmpty(t, res.Payment.Reference)
}

func TestRenewFromFutureEndDateExtendsEndDate(t *testing.T) {
	f := newFixture(t, at(2025, time.November, 1))
	register(t, f, domain.Fields{"customer_no": "C002", "end_date": "2025-12-31"})

	res, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C002", Months: 1})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-31", res.Subscriber.EndDate.String())
}

func TestRenewDefaultsToOneMonthAndSupportsDays(t *testing.T) {
	f := newFixture(t, at(2025, time.January, 10))
	register(t, f, domain.Fields{"customer_no": "C010", "end_date": "2025-01-31"})

	res, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C010"})
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", res.Subscriber.EndDate.String())

	res, err = f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C010", Days: 10})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", res.Subscriber.EndDate.String())
}

func TestRenewWithThirtyDayPolicy(t *testing.T) {
	f := newFixture(t, at(2025, time.January, 10), func(c *config.Config) {
		c.RenewalPolicy = period.PolicyThirtyDay
	})
	register(t, f, domain.Fields{"customer_no": "C011", "end_date": "2025-01-31"})

	res, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C011", Months: 2})
	require.NoError(t, err)
	assert.Equal(t, "2025-04-01", res.Subscriber.EndDate.String())
}

func TestRenewWithoutEndDateStartsToday(t *testing.T) {
	f := newFixture(t, at(2025, time.March, 31))
	register(t, f, domain.Fields{"customer_no": "C012"})

	res, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C012", Months: 1})
	require.NoError(t, err)
	assert.Equal(t, "2025-04-30", res.Subscriber.EndDate.String())
	assert.False(t, res.PreviousEnd.Valid)
}

func TestRenewReactivatesSuspendedSubscriber(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C013", "end_date": "2025-10-20", "status": "suspended"})
	assert.Contains(t, f.reminders.canceled, "C013")

	res, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C013"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, res.Subscriber.Status)
	assert.Contains(t, f.reminders.armed, "C013")
	assert.Equal(t, "2025-11-20", f.reminders.armed["C013"].EndDate.String())
}

func TestRenewValidation(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C014"})

	cases := map[string]domain.RenewRequest{
		"missing key":    {Months: 1},
		"negative paid":  {CustomerNo: "C014", Paid: -1},
		"negative month": {CustomerNo: "C014", Months: -1},
		"both units":     {CustomerNo: "C014", Months: 1, Days: 3},
		"too long":       {CustomerNo: "C014", Months: 500},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Renew(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	var payments int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&payments).Error)
	assert.Zero(t, payments)
}

func TestRenewUnknownCustomer(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	_, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenewRejectsReplayedReference(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C017", "end_date": "2025-10-20"})

	req := domain.RenewRequest{CustomerNo: "C017", Months: 1, Paid: 500, Reference: "TX-1"}
	first, err := f.svc.Renew(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.Renew(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
	assert.ErrorIs(t, err, domain.ErrValidation)

	current, err := f.svc.Get(context.Background(), "C017")
	require.NoError(t, err)
	assert.Equal(t, first.Subscriber.EndDate, current.EndDate)
	assert.Equal(t, int64(500), current.AmountPaid)

	payments, err := f.svc.Payments(context.Background(), "C017")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRenewIsMonotonic(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C015", "end_date": "2025-10-20", "amount_paid": "100"})

	prev, err := f.svc.Get(context.Background(), "C015")
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		paid := int64(i * 250)
		f.clock.Advance(time.Duration(i*9) * 24 * time.Hour)
		today := f.svc.Today()

		res, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C015", Paid: paid})
		require.NoError(t, err)

		assert.Equal(t, prev.AmountPaid+paid, res.Subscriber.AmountPaid)
		assert.False(t, res.Subscriber.EndDate.Date.Before(period.Max(today, prev.EndDate.Date)))
		assert.True(t, res.Subscriber.EndDate.Date.After(prev.EndDate.Date))
		prev = res.Subscriber
	}

	payments, err := f.svc.Payments(context.Background(), "C015")
	require.NoError(t, err)
	assert.Len(t, payments, 6)
}

func TestConcurrentRenewalsAccumulate(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C016", "end_date": "2025-10-05"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C016", Days: 1, Paid: 10})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.Get(context.Background(), "C016")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.AmountPaid)
	assert.Equal(t, "2025-10-15", got.EndDate.String())
}

func TestRegisterNormalizesFields(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))

	res, err := f.svc.Register(context.Background(), domain.Fields{
		"customer_no":    "C020",
		"tg_username":    "ahmad",
		"external_id":    "123456",
		"profiles_count": "2",
		"end_date":       "05/11/2025",
		"amount_paid":    "2500.9",
		"plan":           "premium",
	})
	require.NoError(t, err)
	assert.True(t, res.Created)

	s := res.Subscriber
	assert.Equal(t, "C020", s.CustomerNo)
	assert.Equal(t, domain.DefaultName, s.Name)
	require.NotNil(t, s.ContactHandle)
	assert.Equal(t, "@ahmad", *s.ContactHandle)
	require.NotNil(t, s.ExternalID)
	assert.Equal(t, int64(123456), *s.ExternalID)
	assert.Equal(t, 2, s.ProfilesCount)
	assert.Equal(t, date(2025, time.October, 5), s.StartDate)
	assert.Equal(t, "2025-11-05", s.EndDate.String())
	assert.Equal(t, int64(2500), s.AmountPaid)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Contains(t, f.reminders.armed, "C020")
}

func TestRegisterGeneratesUniqueCustomerNumbers(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s := register(t, f, domain.Fields{"name": fmt.Sprintf("n%d", i)})
		assert.Regexp(t, `^C\d+$`, s.CustomerNo)
		assert.False(t, seen[s.CustomerNo])
		seen[s.CustomerNo] = true
	}
}

func TestRegisterUpsertsOnCustomerNo(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	first := register(t, f, domain.Fields{"customer_no": "C021", "name": "Ali", "plan": "basic"})

	res, err := f.svc.Register(context.Background(), domain.Fields{"customer_no": "C021", "name": "Ali Hassan"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, first.ID, res.Subscriber.ID)
	assert.Equal(t, "Ali Hassan", res.Subscriber.Name)
	assert.Equal(t, "", res.Subscriber.Plan)

	var count int64
	require.NoError(t, f.db.Model(&domain.Subscriber{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRegisterRejectsInvalidFields(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	cases := []domain.Fields{
		{"external_id": "12a"},
		{"profiles_count": "0"},
		{"profiles_count": "two"},
		{"amount_paid": "-5"},
		{"end_date": "someday"},
		{"status": "paused"},
		{"customer_no": "has space"},
	}
	for _, fields := range cases {
		_, err := f.svc.Register(context.Background(), fields)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, "fields %v", fields)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestSetStatusIgnoresDates(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C030", "end_date": "2020-01-01"})

	s, err := f.svc.SetStatus(context.Background(), "C030", domain.StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, s.Status)
	assert.NotContains(t, f.reminders.armed, "C030")

	s, err = f.svc.SetStatus(context.Background(), "C030", domain.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, "2020-01-01", s.EndDate.String())

	_, err = f.svc.SetStatus(context.Background(), "C030", "paused")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.SetStatus(context.Background(), "missing", domain.StatusActive)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusChangeAndRenewalKeepReminderConsistent(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C1", "end_date": "2025-10-20"})
	gated := newGatedReminders()
	f.svc.reminders = gated

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.svc.SetStatus(context.Background(), "C1", domain.StatusSuspended)
		assert.NoError(t, err)
	}()
	<-gated.entered

	go func() {
		defer wg.Done()
		_, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C1", Months: 1})
		assert.NoError(t, err)
	}()
	time.Sleep(50 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	got, err := f.svc.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, "2025-11-20", got.EndDate.String())

	gated.mu.Lock()
	defer gated.mu.Unlock()
	armed, ok := gated.armed["C1"]
	require.True(t, ok, "active subscriber must keep a reminder")
	assert.Equal(t, "2025-11-20", armed.EndDate.String())
}

func TestEditIsIdempotent(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C040", "name": "Old", "amount_paid": "700"})

	edit := domain.Fields{"name": "New", "tg_username": "new_handle", "end_date": "2025-12-01", "note": "vip"}
	first, err := f.svc.Edit(context.Background(), "C040", edit)
	require.NoError(t, err)
	second, err := f.svc.Edit(context.Background(), "C040", edit)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "New", second.Name)
	assert.Equal(t, "@new_handle", *second.ContactHandle)
	assert.Equal(t, "2025-12-01", second.EndDate.String())
	assert.Equal(t, int64(700), second.AmountPaid)
	assert.Equal(t, "2025-12-01", f.reminders.armed["C040"].EndDate.String())
}

func TestEditClearsNullableFields(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C041", "external_id": "99", "end_date": "2025-12-01"})

	s, err := f.svc.Edit(context.Background(), "C041", domain.Fields{"external_id": "", "end_date": ""})
	require.NoError(t, err)
	assert.Nil(t, s.ExternalID)
	assert.False(t, s.EndDate.Valid)
	assert.NotContains(t, f.reminders.armed, "C041")
}

func TestEditRejections(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C042"})

	_, err := f.svc.Edit(context.Background(), "C042", domain.Fields{})
	assert.ErrorIs(t, err, domain.ErrNothingChanged)

	_, err = f.svc.Edit(context.Background(), "C042", domain.Fields{"colour": "red"})
	assert.ErrorIs(t, err, domain.ErrUnknownField)

	_, err = f.svc.Edit(context.Background(), "C042", domain.Fields{"customer_no": "C999"})
	assert.ErrorIs(t, err, domain.ErrUnknownField)

	_, err = f.svc.Edit(context.Background(), "C042", domain.Fields{"amount_paid": "1"})
	assert.ErrorIs(t, err, domain.ErrUnknownField)

	_, err = f.svc.Edit(context.Background(), "C042", domain.Fields{"profiles_count": "-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Edit(context.Background(), "missing", domain.Fields{"name": "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListDueSoon(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	today := f.svc.Today()
	register(t, f, domain.Fields{"customer_no": "D5", "end_date": today.AddDays(5).String()})
	register(t, f, domain.Fields{"customer_no": "D3", "end_date": today.AddDays(3).String()})
	register(t, f, domain.Fields{"customer_no": "D1", "end_date": today.AddDays(1).String()})
	register(t, f, domain.Fields{"customer_no": "DX", "end_date": today.AddDays(1).String(), "status": "suspended"})
	register(t, f, domain.Fields{"customer_no": "DN"})

	due, err := f.svc.ListDueSoon(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "D1", due[0].CustomerNo)
	assert.Equal(t, "D3", due[1].CustomerNo)

	for n := 0; n < 7; n++ {
		small, err := f.svc.ListDueSoon(context.Background(), n)
		require.NoError(t, err)
		large, err := f.svc.ListDueSoon(context.Background(), n+1)
		require.NoError(t, err)
		assert.Subset(t, keys(large), keys(small))
		for i := 1; i < len(large); i++ {
			assert.False(t, large[i].EndDate.Date.Before(large[i-1].EndDate.Date))
		}
	}

	_, err = f.svc.ListDueSoon(context.Background(), -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListDueSoonIncludesOverdue(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "OLD", "end_date": "2025-09-01"})

	due, err := f.svc.ListDueSoon(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "OLD", due[0].CustomerNo)
}

func TestListDueOn(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	today := f.svc.Today()
	register(t, f, domain.Fields{"customer_no": "T0", "end_date": today.String()})
	register(t, f, domain.Fields{"customer_no": "T3", "end_date": today.AddDays(3).String()})

	due, err := f.svc.ListDueOn(context.Background(), today.AddDays(3))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "T3", due[0].CustomerNo)
}

func TestFind(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C050", "name": "Zainab", "plan": "family"})
	register(t, f, domain.Fields{"customer_no": "C051", "name": "Omar", "tg_username": "zain_fan"})
	register(t, f, domain.Fields{"customer_no": "C052", "name": "100%_real"})

	got, err := f.svc.Find(context.Background(), "ZAIN")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"C050", "C051"}, keys(got))

	got, err = f.svc.Find(context.Background(), "family")
	require.NoError(t, err)
	assert.Equal(t, []string{"C050"}, keys(got))

	got, err = f.svc.Find(context.Background(), "%_")
	require.NoError(t, err)
	assert.Equal(t, []string{"C052"}, keys(got))

	_, err = f.svc.Find(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFindIsCapped(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5), func(c *config.Config) { c.SearchLimit = 3 })
	for i := 0; i < 5; i++ {
		register(t, f, domain.Fields{"customer_no": fmt.Sprintf("K%d", i), "plan": "gold"})
	}
	got, err := f.svc.Find(context.Background(), "gold")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestImportIsLenient(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))

	res, err := f.svc.Import(context.Background(), domain.Fields{
		"name":           "Row",
		"tg_user_id":     "not-a-number",
		"profiles_count": "x",
		"amount_paid":    "abc",
		"end_date":       "later",
	}, "C00001")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "C00001", res.Subscriber.CustomerNo)
	assert.Nil(t, res.Subscriber.ExternalID)
	assert.Equal(t, 1, res.Subscriber.ProfilesCount)
	assert.Zero(t, res.Subscriber.AmountPaid)
	assert.False(t, res.Subscriber.EndDate.Valid)
	assert.Len(t, res.Issues, 4)

	res, err = f.svc.Import(context.Background(), domain.Fields{"customer_no": "C00001", "name": "Row"}, "")
	require.NoError(t, err)
	assert.False(t, res.Created)
}

func TestGetAndPaymentsNotFound(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	_, err := f.svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Payments(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExportOrdersNewestFirst(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "E1"})
	register(t, f, domain.Fields{"customer_no": "E2"})

	rows, err := f.svc.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"E2", "E1"}, keys(rows))
}

func TestReminderFailureDoesNotFailRenewal(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	register(t, f, domain.Fields{"customer_no": "C060"})
	f.reminders.err = errors.New("store down")

	_, err := f.svc.Renew(context.Background(), domain.RenewRequest{CustomerNo: "C060"})
	assert.NoError(t, err)
}

func TestStorageFailureIsWrapped(t *testing.T) {
	f := newFixture(t, at(2025, time.October, 5))
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.svc.Get(context.Background(), "C001")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func keys(rows []domain.Subscriber) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.CustomerNo)
	}
	return out
}
