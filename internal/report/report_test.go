package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dentalcore/internal/blob"
	"dentalcore/internal/report"
	"dentalcore/pkg/domain"
)

type reportsMock struct {
	mock.Mock
}

func (m *reportsMock) AvailableMonths(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *reportsMock) CountsByMonth(ctx context.Context, month string) ([]domain.DescriptionCount, error) {
	args := m.Called(ctx, month)
	return args.Get(0).([]domain.DescriptionCount), args.Error(1)
}

func (m *reportsMock) RevenueByMonth(ctx context.Context, month string) ([]domain.DescriptionRevenue, error) {
	args := m.Called(ctx, month)
	return args.Get(0).([]domain.DescriptionRevenue), args.Error(1)
}

var generated = time.Date(2023, 11, 1, 9, 0, 0, 0, time.UTC)

func october(m *reportsMock) {
	m.On("CountsByMonth", mock.Anything, "2023-10").Return([]domain.DescriptionCount{
		{Description: "Cleaning", Count: 1},
		{Description: "Root Canal", Count: 1},
	}, nil)
	m.On("RevenueByMonth", mock.Anything, "2023-10").Return([]domain.DescriptionRevenue{
		{Description: "Cleaning", Total: 1500},
		{Description: "Root Canal", Total: 8500},
	}, nil)
}

func newExporter(repo domain.ReportRepository, store blob.Store) *report.Exporter {
	return report.NewExporter(repo, store,
		report.WithClock(func() time.Time { return generated }),
		report.WithIDGenerator(func() string { return "export-1" }),
	)
}

func readBlob(t *testing.T, store blob.Store, key string) string {
	t.Helper()
	_, rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(body)
}

func TestBuildMergesCountsAndRevenue(t *testing.T) {
	repo := &reportsMock{}
	october(repo)
	rep, err := newExporter(repo, blob.NewMemory()).Build(context.Background(), "2023-10")
	require.NoError(t, err)

	assert.Equal(t, "2023-10", rep.Month)
	assert.Equal(t, generated, rep.GeneratedAt)
	assert.Equal(t, []report.Row{
		{Description: "Cleaning", Count: 1, TotalCost: 1500},
		{Description: "Root Canal", Count: 1, TotalCost: 8500},
	}, rep.Rows)
	assert.Equal(t, report.Totals{Count: 2, TotalCost: 10000}, rep.Totals)
	repo.AssertExpectations(t)
}

func TestExportMonthWritesBothFormats(t *testing.T) {
	repo := &reportsMock{}
	october(repo)
	store := blob.NewMemory()
	artifacts, err := newExporter(repo, store).ExportMonth(context.Background(), "2023-10")
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	csvArt, jsonArt := artifacts[0], artifacts[1]
	assert.Equal(t, "reports/2023-10/export-1.csv", csvArt.Key)
	assert.Equal(t, "text/csv", csvArt.ContentType)
	assert.Equal(t, "reports/2023-10/export-1.json", jsonArt.Key)
	assert.NotEmpty(t, csvArt.URL)
	assert.Equal(t, "export-1", jsonArt.ExportID)

	body := readBlob(t, store, csvArt.Key)
	assert.Equal(t, "description,count,total_cost\nCleaning,1,1500.00\nRoot Canal,1,8500.00\n", body)
	assert.EqualValues(t, len(body), csvArt.Size)

	var decoded report.MonthReport
	require.NoError(t, json.Unmarshal([]byte(readBlob(t, store, jsonArt.Key)), &decoded))
	assert.Equal(t, "2023-10", decoded.Month)
	assert.Len(t, decoded.Rows, 2)
	assert.Equal(t, 10000.0, decoded.Totals.TotalCost)

	info, err := store.Head(context.Background(), jsonArt.Key)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"month": "2023-10", "export_id": "export-1", "format": "json"}, info.Metadata)

	listed, err := newExporter(repo, store).List(context.Background(), "2023-10")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestExportEmptyMonthHasZeroTotals(t *testing.T) {
	repo := &reportsMock{}
	repo.On("CountsByMonth", mock.Anything, "2024-02").Return([]domain.DescriptionCount{}, nil)
	repo.On("RevenueByMonth", mock.Anything, "2024-02").Return([]domain.DescriptionRevenue{}, nil)
	store := blob.NewMemory()

	artifacts, err := newExporter(repo, store).ExportMonth(context.Background(), "2024-02", report.FormatJSON, report.FormatCSV)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, report.FormatJSON, artifacts[0].Format)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(readBlob(t, store, artifacts[0].Key)), &decoded))
	assert.Equal(t, []any{}, decoded["rows"])
	assert.Equal(t, map[string]any{"count": float64(0), "total_cost": float64(0)}, decoded["totals"])
	assert.Equal(t, "description,count,total_cost\n", readBlob(t, store, artifacts[1].Key))
}

func TestExportRejectsBadInput(t *testing.T) {
	repo := &reportsMock{}
	exp := newExporter(repo, blob.NewMemory())

	_, err := exp.ExportMonth(context.Background(), "2023-10", "pdf")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = exp.ExportMonth(context.Background(), "October")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = exp.List(context.Background(), "2023/10")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	repo.AssertNotCalled(t, "CountsByMonth", mock.Anything, mock.Anything)
}

func TestExportSurfacesStoreErrors(t *testing.T) {
	repo := &reportsMock{}
	boom := errors.New("disk gone")
	repo.On("CountsByMonth", mock.Anything, "2023-10").Return([]domain.DescriptionCount(nil), boom)

	_, err := newExporter(repo, blob.NewMemory()).ExportMonth(context.Background(), "2023-10")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "counts for 2023-10")
}

func TestExportIDsAreUnique(t *testing.T) {
	repo := &reportsMock{}
	october(repo)
	store := blob.NewMemory()
	exp := report.NewExporter(repo, store)

	first, err := exp.ExportMonth(context.Background(), "2023-10", report.FormatCSV)
	require.NoError(t, err)
	second, err := exp.ExportMonth(context.Background(), "2023-10", report.FormatCSV)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Key, second[0].Key)
	assert.True(t, strings.HasPrefix(first[0].Key, "reports/2023-10/"))
}

func TestParseFormats(t *testing.T) {
	got, err := report.ParseFormats("json", "csv")
	require.NoError(t, err)
	assert.Equal(t, []report.Format{report.FormatJSON, report.FormatCSV}, got)
	_, err = report.ParseFormats("xlsx")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRenderCSVQuotesDescriptions(t *testing.T) {
	out, err := report.Render(report.MonthReport{Rows: []report.Row{{Description: `Filling, "deep"`, Count: 2, TotalCost: 10.5}}}, report.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "description,count,total_cost\n\"Filling, \"\"deep\"\"\",2,10.50\n", string(out))
}
