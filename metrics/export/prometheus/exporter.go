package prometheus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source internaldefs.Source
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [goAccount.Engine].
func NewPrometheusExporter(engine *goAccount.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any
// snapshot source.
func NewPrometheusExporterFromSource(source internaldefs.Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = p.Write(w)
	})
}

// Render returns the current exposition. It is empty when the engine
// collects no metrics.
func (p *PrometheusExporter) Render() string {
	var buf bytes.Buffer
	_ = p.Write(&buf)
	return buf.String()
}

// Write streams the current exposition to w.
func (p *PrometheusExporter) Write(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}
	samples, empty := internaldefs.Collect(p.source)
	if empty {
		return nil
	}

	bw := bufio.NewWriter(w)
	for _, s := range samples {
		typ := "counter"
		if s.Kind == internaldefs.Histogram {
			typ = "histogram"
		}
		fmt.Fprintf(bw, "# HELP %s %s\n# TYPE %s %s\n", s.Name, escapeHelp(s.Help), s.Name, typ)

		if s.Kind != internaldefs.Histogram {
			fmt.Fprintf(bw, "%s %d\n", s.Name, s.Value)
			continue
		}
		for i, le := range internaldefs.BucketBounds {
			fmt.Fprintf(bw, "%s_bucket{le=%q} %d\n", s.Name, le, s.Buckets[i])
		}
		// snapshots carry bucket counts only, so the sum is always zero
		fmt.Fprintf(bw, "%s_sum 0\n%s_count %d\n", s.Name, s.Name, s.Value)
	}
	return bw.Flush()
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
