package site

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/llamawrapper/sitepanel/internal/panel"
	"github.com/llamawrapper/sitepanel/internal/probe"
	"github.com/llamawrapper/sitepanel/internal/status"
)

// directServices is how many of status.Services are probed individually
// when the aggregate is unavailable.
const directServices = 3

// SystemPanel builds the status table.
type SystemPanel struct {
	upstream    *probe.Upstream
	collections []string
	parallel    bool
	logger      *zap.Logger
}

// Rows asks the aggregate endpoint first and falls back to one probe per
// service and per collection. Rows are services first, then collections, in
// fixed order.
func (p *SystemPanel) Rows(ctx context.Context) []status.SystemRow {
	var queried string
	if len(p.collections) > 0 {
		queried = p.collections[0]
	}
	if eco, ok := p.upstream.Ecosystem(ctx, queried); ok {
		return panel.Rows(p.fromAggregate(eco))
	}
	p.logger.Debug("aggregate status unavailable, probing services individually")
	return panel.Rows(p.probeEach(ctx))
}

func (p *SystemPanel) fromAggregate(eco status.Ecosystem) []status.SystemRow {
	rows := make([]status.SystemRow, 0, len(status.Services)+len(p.collections))
	for i, svc := range status.Services {
		report, ok := eco.Services[svc.Key]
		if !ok && i >= directServices {
			continue
		}
		row := status.SystemRow{
			Resource: svc.Resource,
			Type:     status.TypeService,
			Status:   status.RowUnknown,
			Endpoint: firstNonEmpty(report.URL, p.upstream.BaseURL(svc.Key)),
		}
		if ok {
			row.Status = status.RowStatus(report.OK)
			row.Docs = serviceDocs(svc.Key, report)
		}
		rows = append(rows, row)
	}

	for _, name := range p.collections {
		row := status.SystemRow{
			Resource: name,
			Type:     status.TypeCollection,
			Status:   status.RowUnknown,
			Endpoint: p.upstream.StatsURL(name),
		}
		if stats, ok := eco.Collections[name]; ok {
			row.Status = status.RowOK
			row.Docs = stats.Count
			row.Updated = stats.FormattedUpdated()
		}
		rows = append(rows, row)
	}
	return rows
}

func (p *SystemPanel) probeEach(ctx context.Context) []status.SystemRow {
	services := status.Services[:directServices]
	rows := make([]status.SystemRow, len(services)+len(p.collections))

	tasks := make([]func(), 0, len(rows))
	for i, svc := range services {
		i, svc := i, svc
		tasks = append(tasks, func() { rows[i] = p.healthRow(ctx, svc) })
	}
	for j, name := range p.collections {
		j, name := j, name
		tasks = append(tasks, func() { rows[len(services)+j] = p.statsRow(ctx, name) })
	}

	if !p.parallel {
		for _, task := range tasks {
			task()
		}
		return rows
	}

	var g errgroup.Group
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			task()
			return nil
		})
	}
	g.Wait()
	return rows
}

func (p *SystemPanel) healthRow(ctx context.Context, svc status.Service) status.SystemRow {
	base := p.upstream.BaseURL(svc.Key)
	res := p.upstream.Health(ctx, base)
	row := status.SystemRow{
		Resource: svc.Resource,
		Type:     status.TypeService,
		Status:   status.RowStatus(res.OK),
		Endpoint: base,
	}
	if res.OK {
		row.Docs = serviceDocs(svc.Key, status.ParseServiceReport(res.Data))
	}
	return row
}

func (p *SystemPanel) statsRow(ctx context.Context, name string) status.SystemRow {
	row := status.SystemRow{
		Resource: name,
		Type:     status.TypeCollection,
		Status:   status.RowDown,
		Endpoint: p.upstream.StatsURL(name),
	}
	if stats, ok := p.upstream.RAGStats(ctx, name); ok {
		row.Status = status.RowOK
		row.Docs = stats.Count
		row.Updated = stats.FormattedUpdated()
	}
	return row
}

// serviceDocs fills the docs column: the model for the inference server,
// the reported status text for everything else.
func serviceDocs(key string, r status.ServiceReport) string {
	if key == "llm" {
		return panel.LLMDocs(r.ModelID, r.Loaded)
	}
	return r.Status
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
