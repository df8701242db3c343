package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"confirmit/internal/reputation/models"
	"confirmit/internal/reputation/oracle"
	"confirmit/internal/reputation/service/mocks"
	"confirmit/internal/reputation/store"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/requestcontext"
)

const subject = domain.SubjectHash("84d89877f0d4041efb6bf91a16f0248f2fd573e6af05c19f96bedb9f882f7882")

var (
	t0     = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// fakeOracle scores every subject the same way and counts calls.
type fakeOracle struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	score   int
	bizID   string
}

func (f *fakeOracle) Check(ctx context.Context, _ models.Query) (*models.Assessment, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Assessment{
		TrustScore:         f.score,
		RiskLevel:          models.RiskLow,
		Fraud:              models.FraudSummary{},
		VerifiedBusinessID: f.bizID,
		Flags:              []string{},
	}, nil
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func newService(t *testing.T, o Oracle, opts ...Option) (*Service, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	svc, err := New(st, o, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return svc, st
}

func TestNew(t *testing.T) {
	_, err := New(nil, &fakeOracle{})
	assert.ErrorContains(t, err, "store is required")
	_, err = New(store.NewInMemoryStore(), nil)
	assert.ErrorContains(t, err, "oracle is required")
}

func TestGetOrRefresh_FirstCheckThenCached(t *testing.T) {
	o := &fakeOracle{score: 82}
	svc, _ := newService(t, o)
	req := RefreshRequest{Subject: subject, BankCode: "058"}

	first, err := svc.GetOrRefresh(at(t0), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), o.calls.Load())
	assert.Equal(t, 82, first.TrustScore)
	assert.Equal(t, int64(1), first.CheckCount)
	assert.Equal(t, t0, first.LastChecked)

	second, err := svc.GetOrRefresh(at(t0.Add(time.Hour)), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), o.calls.Load(), "fresh record must not reach the oracle")
	assert.Equal(t, int64(2), second.CheckCount)
	assert.Equal(t, t0, second.LastChecked, "cache hit leaves last checked unchanged")
}

func TestGetOrRefresh_StaleRecordRefreshes(t *testing.T) {
	o := &fakeOracle{score: 60}
	svc, _ := newService(t, o)
	req := RefreshRequest{Subject: subject}

	_, err := svc.GetOrRefresh(at(t0), req)
	require.NoError(t, err)

	o.score = 40
	later := t0.Add(8 * 24 * time.Hour)
	rec, err := svc.GetOrRefresh(at(later), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), o.calls.Load())
	assert.Equal(t, 40, rec.TrustScore)
	assert.Equal(t, later, rec.LastChecked)
	assert.Equal(t, int64(2), rec.CheckCount)
}

func TestGetOrRefresh_ReportedSubjectRefreshesOnFirstCheck(t *testing.T) {
	o := &fakeOracle{score: 55}
	svc, st := newService(t, o)
	_, err := st.RecordFraudReport(context.Background(), subject, t0)
	require.NoError(t, err)

	rec, err := svc.GetOrRefresh(at(t0.Add(time.Minute)), RefreshRequest{Subject: subject})
	require.NoError(t, err)
	assert.Equal(t, int32(1), o.calls.Load(), "never-checked record must refresh")
	assert.Equal(t, 55, rec.TrustScore)
	assert.Equal(t, 1, rec.Fraud.Total, "local fraud counts survive the refresh")
	assert.Equal(t, int64(1), rec.CheckCount)
}

func TestGetOrRefresh_OracleFailure(t *testing.T) {
	t.Run("absent record", func(t *testing.T) {
		o := &fakeOracle{err: errors.New("connection refused")}
		svc, st := newService(t, o)

		rec, err := svc.GetOrRefresh(at(t0), RefreshRequest{Subject: subject})
		require.Error(t, err)
		assert.Nil(t, rec)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
		assert.True(t, dErrors.IsRetryable(err))

		_, err = st.Find(context.Background(), subject)
		assert.ErrorIs(t, err, store.ErrNotFound, "nothing is written when the oracle fails")
	})

	t.Run("stale record is returned unchanged", func(t *testing.T) {
		o := &fakeOracle{score: 70}
		svc, st := newService(t, o)
		_, err := svc.GetOrRefresh(at(t0), RefreshRequest{Subject: subject})
		require.NoError(t, err)

		o.err = errors.New("503")
		rec, err := svc.GetOrRefresh(at(t0.Add(10*24*time.Hour)), RefreshRequest{Subject: subject})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
		require.NotNil(t, rec)
		assert.Equal(t, 70, rec.TrustScore)
		assert.Equal(t, t0, rec.LastChecked)

		stored, err := st.Find(context.Background(), subject)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.CheckCount, "failed check is not counted")
	})
}

func TestGetOrRefresh_CoalescesConcurrentRefreshes(t *testing.T) {
	o := &fakeOracle{score: 90, release: make(chan struct{})}
	svc, st := newService(t, o)
	ctx := at(t0)

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetOrRefresh(ctx, RefreshRequest{Subject: subject})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return o.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(o.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), o.calls.Load())
	rec, err := st.Find(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, int64(callers), rec.CheckCount)
}

func TestGetOrRefresh_ResolvesVerifiedBusiness(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockBusinessDirectory(ctrl)
	score := 85
	dir.EXPECT().
		VerifiedSummary(gomock.Any(), domain.BusinessID("BIZ-0011223344556677")).
		Return(&models.VerifiedBusiness{BusinessID: "BIZ-0011223344556677", Name: "Acme", Verified: true, TrustScore: &score}, nil)

	o := &fakeOracle{score: 88, bizID: "BIZ-0011223344556677"}
	svc, _ := newService(t, o, WithBusinessDirectory(dir))

	rec, err := svc.GetOrRefresh(at(t0), RefreshRequest{Subject: subject})
	require.NoError(t, err)
	require.NotNil(t, rec.VerifiedBusiness)
	assert.Equal(t, "Acme", rec.VerifiedBusiness.Name)
	assert.True(t, rec.VerifiedBusiness.Verified)
}

func TestGetOrRefresh_UnknownBusinessIsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockBusinessDirectory(ctrl)
	dir.EXPECT().
		VerifiedSummary(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "business not found"))

	svc, _ := newService(t, &fakeOracle{score: 50, bizID: "BIZ-FFFF"}, WithBusinessDirectory(dir))
	rec, err := svc.GetOrRefresh(at(t0), RefreshRequest{Subject: subject})
	require.NoError(t, err)
	assert.Nil(t, rec.VerifiedBusiness)
}

// =============================================================================
// Store failure paths
// =============================================================================

type StoreFailureSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	store  *mocks.MockStore
	oracle *mocks.MockOracle
	svc    *Service
}

func TestStoreFailureSuite(t *testing.T) {
	suite.Run(t, new(StoreFailureSuite))
}

func (s *StoreFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.oracle = mocks.NewMockOracle(s.ctrl)
	svc, err := New(s.store, s.oracle, WithLogger(logger))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *StoreFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *StoreFailureSuite) TestFindErrorIsInternal() {
	s.store.EXPECT().Find(gomock.Any(), subject).Return(nil, errors.New("db down"))

	_, err := s.svc.GetOrRefresh(at(t0), RefreshRequest{Subject: subject})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StoreFailureSuite) TestCircuitOpenIsUpstreamUnavailable() {
	s.store.EXPECT().Find(gomock.Any(), subject).Return(nil, store.ErrNotFound)
	s.oracle.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(nil, &oracle.Error{Category: oracle.ErrorCircuitOpen, Message: "circuit open"})

	_, err := s.svc.GetOrRefresh(at(t0), RefreshRequest{Subject: subject})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
}

func (s *StoreFailureSuite) TestSaveErrorSkipsCount() {
	s.store.EXPECT().Find(gomock.Any(), subject).Return(nil, store.ErrNotFound)
	s.oracle.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(&models.Assessment{TrustScore: 50, RiskLevel: models.RiskMedium}, nil)
	s.store.EXPECT().SaveRefresh(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk full"))

	_, err := s.svc.GetOrRefresh(at(t0), RefreshRequest{Subject: subject})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StoreFailureSuite) TestGetNotFound() {
	s.store.EXPECT().Find(gomock.Any(), subject).Return(nil, store.ErrNotFound)

	_, err := s.svc.Get(context.Background(), subject)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
