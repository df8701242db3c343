package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"confirmit/internal/fraud/models"
	"confirmit/internal/fraud/service/mocks"
	"confirmit/internal/fraud/store"
	repmodels "confirmit/internal/reputation/models"
	repservice "confirmit/internal/reputation/service"
	repstore "confirmit/internal/reputation/store"
	"confirmit/pkg/domain"
	dErrors "confirmit/pkg/domain-errors"
	"confirmit/pkg/platform/tx"
	"confirmit/pkg/requestcontext"
)

const subject = domain.SubjectHash("84d89877f0d4041efb6bf91a16f0248f2fd573e6af05c19f96bedb9f882f7882")

var (
	t0     = time.Date(2026, 7, 3, 8, 30, 0, 0, time.UTC)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type scoringOracle struct{ score int }

func (o scoringOracle) Check(context.Context, repmodels.Query) (*repmodels.Assessment, error) {
	return &repmodels.Assessment{TrustScore: o.score, RiskLevel: repmodels.RiskMedium, Flags: []string{}}, nil
}

func newLedger(t *testing.T) (*Service, *repstore.InMemoryStore) {
	t.Helper()
	reputation := repstore.NewInMemoryStore()
	svc, err := New(store.NewInMemoryStore(), reputation, tx.NoTx{}, WithLogger(logger))
	require.NoError(t, err)
	return svc, reputation
}

func TestFile_UnknownSubjectCreatesReportedRecord(t *testing.T) {
	svc, reputation := newLedger(t)
	ctx := requestcontext.WithTime(context.Background(), t0)

	report, err := svc.File(ctx, subject, "Non-delivery of goods", "Paid for a phone that never arrived")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, report.Status)
	assert.Equal(t, t0, report.ReportedAt)

	rec, err := reputation.Find(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, repmodels.ReportedTrustScore, rec.TrustScore)
	assert.Equal(t, repmodels.RiskHigh, rec.RiskLevel)
	assert.Equal(t, repmodels.FraudSummary{Total: 1, Recent30d: 1}, rec.Fraud)
	assert.Equal(t, []string{repmodels.ReportedFlag}, rec.Flags)
	assert.True(t, rec.LastChecked.IsZero())

	// The next check treats the record as never checked and refreshes it.
	checker, err := repservice.New(reputation, scoringOracle{score: 45}, repservice.WithLogger(logger))
	require.NoError(t, err)
	checked, err := checker.GetOrRefresh(requestcontext.WithTime(context.Background(), t0.Add(time.Minute)),
		repservice.RefreshRequest{Subject: subject})
	require.NoError(t, err)
	assert.Equal(t, 45, checked.TrustScore)
	assert.Equal(t, 1, checked.Fraud.Total)
	assert.Equal(t, int64(1), checked.CheckCount)
}

func TestFile_ExistingSubjectIncrementsCounters(t *testing.T) {
	svc, reputation := newLedger(t)
	ctx := context.Background()

	const reports = 25
	var wg sync.WaitGroup
	for i := 0; i < reports; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.File(ctx, subject, "scam", "duplicate reports are allowed")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := reputation.Find(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, repmodels.FraudSummary{Total: reports, Recent30d: reports}, rec.Fraud)

	listed, err := svc.ListBySubject(ctx, subject, 0)
	require.NoError(t, err)
	assert.Len(t, listed, reports)
}

func TestFile_Validation(t *testing.T) {
	svc, _ := newLedger(t)
	_, err := svc.File(context.Background(), subject, "  ", "desc")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestReview(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()
	report, err := svc.File(ctx, subject, "scam", "desc")
	require.NoError(t, err)

	reviewed, err := svc.Review(ctx, report.ID, models.StatusVerified)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, reviewed.Status)
	assert.NotNil(t, reviewed.ReviewedAt)

	_, err = svc.Review(ctx, report.ID, models.StatusRejected)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = svc.Review(ctx, report.ID, models.StatusPending)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Review(ctx, domain.NewReportID(), models.StatusVerified)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Transaction behavior
// =============================================================================

type FileTxSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	reports  *mocks.MockReportStore
	counters *mocks.MockCounterStore
	tx       *mocks.MockTxRunner
	svc      *Service
}

func TestFileTxSuite(t *testing.T) {
	suite.Run(t, new(FileTxSuite))
}

func (s *FileTxSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.reports = mocks.NewMockReportStore(s.ctrl)
	s.counters = mocks.NewMockCounterStore(s.ctrl)
	s.tx = mocks.NewMockTxRunner(s.ctrl)
	s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}).AnyTimes()
	svc, err := New(s.reports, s.counters, s.tx, WithLogger(logger))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *FileTxSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FileTxSuite) TestCounterFailureFailsTheReport() {
	s.reports.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.counters.EXPECT().RecordFraudReport(gomock.Any(), subject, gomock.Any()).Return(nil, errors.New("deadlock"))

	_, err := s.svc.File(context.Background(), subject, "scam", "desc")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *FileTxSuite) TestInsertFailureSkipsCounters() {
	s.reports.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("unique violation"))

	_, err := s.svc.File(context.Background(), subject, "scam", "desc")
	s.Require().Error(err)
}

func (s *FileTxSuite) TestNew() {
	_, err := New(nil, s.counters, s.tx)
	s.ErrorContains(err, "report store is required")
	_, err = New(s.reports, nil, s.tx)
	s.ErrorContains(err, "counter store is required")
	_, err = New(s.reports, s.counters, nil)
	s.ErrorContains(err, "transaction runner is required")
}
