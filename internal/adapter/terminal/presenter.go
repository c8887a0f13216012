// Package terminal renders wizard state to a text console. It is a
// pure sink: it receives snapshots and events and never mutates state.
package terminal

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/workflow"
)

// Presenter implements workflow.Presenter on an io.Writer.
type Presenter struct {
	mu      sync.Mutex
	out     io.Writer
	catalog domain.Catalog
}

// NewPresenter creates a presenter writing to out.
func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out}
}

// SetCatalog supplies the loaded catalogs so the parameter step can
// show per-category selection counts.
func (p *Presenter) SetCatalog(c domain.Catalog) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalog = c
}

func (p *Presenter) RenderState(snap domain.SelectionState, gates workflow.Gates) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\nsteps: %s %s %s %s\n",
		stepMark(1, "stations", gates.Stations),
		stepMark(2, "period", gates.Period),
		stepMark(3, "parameters", gates.Parameters),
		stepMark(4, "download", gates.Download),
	)
	fmt.Fprintf(p.out, "selection: %d station(s), %d parameter(s), granularity %s",
		len(snap.Stations), len(snap.Params), snap.Granularity.Label())
	if snap.DatesComplete() {
		fmt.Fprintf(p.out, ", %s .. %s", snap.Start.Format(domain.DateFormat), snap.End.Format(domain.DateFormat))
	}
	fmt.Fprintln(p.out)

	if gates.Parameters && len(p.catalog.Categories) > 0 {
		counts := p.catalog.SelectionCounts(snap.Params)
		for _, cat := range p.catalog.Categories {
			fmt.Fprintf(p.out, "  %-15s %d/%d selected\n", cat.Label, counts[cat.Key], len(cat.Params))
		}
	}
}

func (p *Presenter) RenderAvailability(res *domain.AvailabilityResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res == nil {
		return
	}
	ids := make([]string, 0, len(res.Stations))
	for id := range res.Stations {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	fmt.Fprintln(p.out, "availability:")
	for _, id := range ids {
		a := res.Stations[id]
		if !a.HasData {
			fmt.Fprintf(p.out, "  %-20s no data (%s)\n", id, a.Err)
			continue
		}
		fmt.Fprintf(p.out, "  %-20s %s .. %s (%s)\n",
			id, a.FirstDate.Format(domain.DateFormat), a.LastDate.Format(domain.DateFormat), a.Duration)
	}
}

func (p *Presenter) RenderEstimate(res *domain.EstimateResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res == nil {
		return
	}
	fmt.Fprintf(p.out, "estimate: %d rows, %d KB (%.2f MB)\n", res.Rows, res.SizeKB, res.SizeMB)
}

func (p *Presenter) FocusStation(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "focused on %s\n", id)
}

func (p *Presenter) Toast(message string, severity workflow.Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%s] %s\n", severity, message)
}

func (p *Presenter) Progress(percent int, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if label == "" {
		return
	}
	fmt.Fprintf(p.out, "progress %3d%% %s\n", percent, label)
}

func stepMark(n int, name string, unlocked bool) string {
	if unlocked {
		return fmt.Sprintf("[%d %s]", n, name)
	}
	return fmt.Sprintf("(%d %s)", n, name)
}
