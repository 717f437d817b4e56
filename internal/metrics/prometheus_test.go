package metrics

import (
	"os"
	"testing"
	"time"

	"github.com/groove/dualpack/internal/bundle"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
)

func TestObserveOutcome(t *testing.T) {
	p := NewPrometheusRecorder()

	p.ObserveOutcome(bundle.BuildOutcome{
		Format:              bundle.FormatCJS,
		Succeeded:           true,
		EmittedFiles:        []string{"/b/cjs/index.js", "/b/cjs/index.js.map"},
		ReferencedExternals: []string{"path"},
		Duration:            150 * time.Millisecond,
	})
	p.ObserveOutcome(bundle.BuildOutcome{
		Format: bundle.FormatESM,
		Diagnostics: []bundle.Diagnostic{
			{Severity: bundle.SeverityError, Kind: bundle.KindBuild, Message: "boom"},
			{Severity: bundle.SeverityWarning, Kind: bundle.KindSourcemap, Message: "missing"},
		},
	})

	assert.Equal(t, testutil.ToFloat64(p.buildsTotal.WithLabelValues("cjs", "success")), 1.0)
	assert.Equal(t, testutil.ToFloat64(p.buildsTotal.WithLabelValues("esm", "error")), 1.0)
	assert.Equal(t, testutil.ToFloat64(p.emittedFiles.WithLabelValues("cjs")), 2.0)
	assert.Equal(t, testutil.ToFloat64(p.emittedFiles.WithLabelValues("esm")), 0.0)
	assert.Equal(t, testutil.ToFloat64(p.externals.WithLabelValues("cjs")), 1.0)
	assert.Equal(t, testutil.ToFloat64(p.diagnostics.WithLabelValues("esm", "error", "build")), 1.0)
	assert.Equal(t, testutil.ToFloat64(p.diagnostics.WithLabelValues("esm", "warning", "sourcemap")), 1.0)
	assert.Equal(t, testutil.CollectAndCount(p.buildDuration), 2)
}

func TestWriteTextfile(t *testing.T) {
	dir := fs.NewDir(t, "dualpack-metrics")
	p := NewPrometheusRecorder()
	p.ObserveOutcome(bundle.BuildOutcome{Format: bundle.FormatCJS, Succeeded: true})

	path := dir.Join("dualpack.prom")
	assert.NilError(t, p.WriteTextfile(path))

	b, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Assert(t, is.Contains(string(b), `dualpack_builds_total{format="cjs",status="success"} 1`))
	assert.Assert(t, is.Contains(string(b), "dualpack_build_duration_seconds_bucket"))
}
