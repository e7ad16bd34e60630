package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aimbuild/siteauth"
	"github.com/aimbuild/siteauth/metrics/export/internaldefs"
)

// Source is satisfied by *siteauth.Engine.
type Source interface {
	MetricsSnapshot() siteauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders a Source on demand. It keeps no state of its own.
type Exporter struct {
	source Source
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render with the text exposition content type.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" when metrics are disabled and
// nothing was dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	w := &textWriter{}
	w.b.Grow(8192)
	for _, def := range internaldefs.CounterDefs {
		w.counter(def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		w.histogram(def.Name, def.Help, internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])))
	}
	w.counter("siteauth_audit_dropped_total", "Audit events dropped because the dispatcher buffer was full.", dropped)
	return w.b.String()
}

type textWriter struct {
	b strings.Builder
}

func (w *textWriter) header(name, help, kind string) {
	w.b.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.b.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *textWriter) sample(name, labels string, v uint64) {
	w.b.WriteString(name)
	w.b.WriteString(labels)
	w.b.WriteByte(' ')
	w.b.WriteString(strconv.FormatUint(v, 10))
	w.b.WriteByte('\n')
}

func (w *textWriter) counter(name, help string, v uint64) {
	w.header(name, help, "counter")
	w.sample(name, "", v)
}

func (w *textWriter) histogram(name, help string, cumulative [8]uint64) {
	w.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", `{le="`+le+`"}`, cumulative[i])
	}
	w.sample(name+"_count", "", cumulative[len(cumulative)-1])
	// Snapshots keep bucket counts only.
	w.sample(name+"_sum", "", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}
