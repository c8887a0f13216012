package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/observability"
	"github.com/meteoci/station-export/internal/workflow"
)

type fakeService struct {
	mu    sync.Mutex
	reqs  []domain.ExportRequest
	err   error
	errAt int // 1-based call index that fails; 0 means err applies to every call
}

func (f *fakeService) Download(_ context.Context, req domain.ExportRequest) ([]byte, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	n := len(f.reqs)
	f.mu.Unlock()

	if f.err != nil && (f.errAt == 0 || f.errAt == n) {
		return nil, f.err
	}
	payload := fmt.Sprintf("Station,Date,Temp._inst\nBINGERVILLE,%s,27.5\n", req.StartDate)
	return []byte(payload), nil
}

func (f *fakeService) requests() []domain.ExportRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ExportRequest(nil), f.reqs...)
}

type memorySink struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (s *memorySink) Save(filename string, payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[filename] = payload
	return nil
}

type nopPresenter struct {
	mu       sync.Mutex
	progress []int
	toasts   []workflow.Severity
}

func (p *nopPresenter) RenderState(domain.SelectionState, workflow.Gates) {}
func (p *nopPresenter) RenderAvailability(*domain.AvailabilityResult)     {}
func (p *nopPresenter) RenderEstimate(*domain.EstimateResult)             {}
func (p *nopPresenter) FocusStation(string)                               {}

func (p *nopPresenter) Toast(_ string, severity workflow.Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, severity)
}

func (p *nopPresenter) Progress(percent int, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, percent)
}

func newTestOrchestrator(svc Service, sink Sink) (*Orchestrator, *nopPresenter) {
	p := &nopPresenter{}
	o := NewOrchestrator(svc, sink, p, observability.NewTestLogger(), observability.NewMetricsForTesting())
	return o, p
}

func exportSnapshot(g domain.Granularity, start, end time.Time) domain.SelectionState {
	return domain.SelectionState{
		Stations:    []string{"CI_BINGERVILLE"},
		Params:      []string{"Temp._inst"},
		Granularity: g,
		Start:       start,
		End:         end,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRun_RejectsIncompleteSelectionWithoutNetworkCalls(t *testing.T) {
	svc := &fakeService{}
	o, p := newTestOrchestrator(svc, &memorySink{})

	snap := exportSnapshot(domain.GranularityHourly, day(2023, 6, 1), day(2023, 6, 30))
	snap.Params = nil

	_, err := o.Run(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "parameter")
	assert.Empty(t, svc.requests(), "rejection must happen before any service call")
	assert.Equal(t, []workflow.Severity{workflow.SeverityWarning}, p.toasts)
	assert.False(t, o.Running())
}

func TestRun_RejectsMissingDates(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, &memorySink{})

	snap := exportSnapshot(domain.GranularityHourly, day(2023, 6, 1), time.Time{})
	_, err := o.Run(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, svc.requests())
}

func TestRun_FilenameDeterministic(t *testing.T) {
	sink := &memorySink{}
	o, _ := newTestOrchestrator(&fakeService{}, sink)

	snap := exportSnapshot(domain.GranularityDaily, day(2023, 1, 1), day(2023, 12, 31))
	snap.Stations = []string{"CI_BINGERVILLE", "CI_ABOBO-MAIRIE"}

	first, err := o.Run(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "meteo_ABOBO-MAIRIE-BINGERVILLE_20230101-20231231.csv", first)

	// Same tuple, different station order: byte-identical name.
	snap.Stations = []string{"CI_ABOBO-MAIRIE", "CI_BINGERVILLE"}
	second, err := o.Run(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRun_SplitsRangeIntoBlocks(t *testing.T) {
	svc := &fakeService{}
	sink := &memorySink{}
	o, p := newTestOrchestrator(svc, sink)

	// Minute granularity caps each request at 7 days: 20 days is 3 blocks.
	snap := exportSnapshot(domain.GranularityMinute, day(2023, 1, 1), day(2023, 1, 21))
	filename, err := o.Run(context.Background(), snap)
	require.NoError(t, err)

	reqs := svc.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "2023-01-01", reqs[0].StartDate)
	for i := 1; i < len(reqs); i++ {
		assert.Equal(t, reqs[i-1].EndDate, reqs[i].StartDate, "blocks must abut")
	}
	assert.Equal(t, "2023-01-21", reqs[2].EndDate)

	merged := string(sink.files[filename])
	assert.Equal(t, 1, strings.Count(merged, "Station,Date,"), "merged payload keeps one header")
	assert.Equal(t, 3, strings.Count(merged, "BINGERVILLE,"), "one data row per block")

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 100, p.progress[len(p.progress)-1])
}

func TestRun_RejectsEqualDates(t *testing.T) {
	svc := &fakeService{}
	o, _ := newTestOrchestrator(svc, &memorySink{})

	// The service refuses start >= end; the orchestrator must refuse it
	// locally instead of issuing a request that can only 400.
	snap := exportSnapshot(domain.GranularityHourly, day(2023, 6, 1), day(2023, 6, 1))
	_, err := o.Run(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "before end date")
	assert.Empty(t, svc.requests())
}

func TestRun_ServiceFailureLeavesRetryPossible(t *testing.T) {
	svc := &fakeService{err: errors.New("service unavailable"), errAt: 2}
	o, p := newTestOrchestrator(svc, &memorySink{})

	snap := exportSnapshot(domain.GranularityMinute, day(2023, 1, 1), day(2023, 1, 21))
	_, err := o.Run(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
	assert.False(t, o.Running(), "trigger must be re-enabled after failure")

	p.mu.Lock()
	assert.Equal(t, 0, p.progress[len(p.progress)-1], "progress resets on failure")
	assert.Contains(t, p.toasts, workflow.SeverityError)
	p.mu.Unlock()

	// The same snapshot can be retried immediately.
	svc.err = nil
	_, err = o.Run(context.Background(), snap)
	require.NoError(t, err)
}

func TestRun_SinkFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	o, _ := newTestOrchestrator(&fakeService{}, sink)

	snap := exportSnapshot(domain.GranularityHourly, day(2023, 6, 1), day(2023, 6, 2))
	_, err := o.Run(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, o.Running())
}

func TestDirSink_Save(t *testing.T) {
	dir := t.TempDir()
	sink := DirSink{Dir: dir}

	require.NoError(t, sink.Save("export.csv", []byte("a,b\n1,2\n")))
	got, err := os.ReadFile(filepath.Join(dir, "export.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))
}

func TestMergeCSV(t *testing.T) {
	a := []byte("h1,h2\n1,2\n")
	b := []byte("h1,h2\n3,4\n")

	merged := mergeCSV(nil, a)
	merged = mergeCSV(merged, b)
	assert.Equal(t, "h1,h2\n1,2\n3,4\n", string(merged))

	// A header-only block contributes nothing.
	merged = mergeCSV(merged, []byte("h1,h2"))
	assert.Equal(t, "h1,h2\n1,2\n3,4\n", string(merged))
}
