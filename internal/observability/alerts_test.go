package observability

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricRef = regexp.MustCompile(`\bnexus_[a-z_]+`)

func loadAlertRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "nexus.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	for _, g := range file.Groups {
		if g.Name == "nexus" {
			require.NotEmpty(t, g.Rules)
			return g.Rules
		}
	}
	t.Fatal("nexus alert group missing")
	return nil
}

// exportedMetricNames touches every collector so vectors show up in Gather.
func exportedMetricNames(t *testing.T) map[string]bool {
	t.Helper()
	metrics := NewMetrics()
	biz := NewBusinessMetrics(metrics.Registerer())
	biz.InvoiceCreated("invoice", decimal.NewFromInt(1))
	biz.PaymentRecorded("Paid", decimal.NewFromInt(1))
	biz.WebOrderReceived()
	biz.StockConflict("weborder")
	biz.PayrollRun(decimal.NewFromInt(1))
	biz.IntegrityFindings("payments_sum", 0)
	metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	families, err := metrics.registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func runbookAnchors(t *testing.T) map[string]bool {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook.md"))
	require.NoError(t, err)
	anchors := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if heading, ok := strings.CutPrefix(sc.Text(), "## "); ok {
			anchors[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(heading)), " ", "-")] = true
		}
	}
	require.NoError(t, sc.Err())
	return anchors
}

func TestAlertExpressionsUseExportedMetrics(t *testing.T) {
	names := exportedMetricNames(t)
	for _, rule := range loadAlertRules(t) {
		refs := metricRef.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, refs, "rule %s does not reference a nexus metric", rule.Alert)
		for _, ref := range refs {
			base := ref
			for _, suffix := range []string{"_bucket", "_sum", "_count"} {
				if trimmed, ok := strings.CutSuffix(ref, suffix); ok && names[trimmed] {
					base = trimmed
				}
			}
			require.True(t, names[base], "rule %s references %s, which nothing exports", rule.Alert, ref)
		}
	}
}

func TestAlertRunbooksResolve(t *testing.T) {
	anchors := runbookAnchors(t)
	for _, rule := range loadAlertRules(t) {
		link := rule.Annotations["runbook"]
		path, anchor, ok := strings.Cut(link, "#")
		require.True(t, ok, "rule %s runbook %q has no anchor", rule.Alert, link)
		require.Equal(t, "docs/runbook.md", path)
		require.True(t, anchors[anchor], "rule %s points at missing runbook section %q", rule.Alert, anchor)
	}
}

func TestAlertRulesAreRoutable(t *testing.T) {
	severities := map[string]bool{"critical": true, "warning": true, "info": true}
	seen := map[string]bool{}
	for _, rule := range loadAlertRules(t) {
		require.False(t, seen[rule.Alert], "duplicate rule %s", rule.Alert)
		seen[rule.Alert] = true
		require.True(t, severities[rule.Labels["severity"]], "rule %s severity %q", rule.Alert, rule.Labels["severity"])
		require.NotEmpty(t, rule.For, "rule %s must hold before firing", rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
	}
	require.True(t, seen["StockConflicts"])
	require.True(t, seen["IntegrityFindings"])
}
