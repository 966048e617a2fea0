package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// CounterTotal is one labelled counter value flattened for JSON output.
type CounterTotal struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Summarize flattens every healsmart counter in the gatherer, sorted by name
// then labels. Used by the stats endpoint and the admin CLI.
func Summarize(gatherer prometheus.Gatherer) []CounterTotal {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return nil
	}

	var out []CounterTotal
	for _, mf := range mfs {
		if mf == nil || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, metric := range mf.Metric {
			if metric == nil || metric.GetCounter() == nil {
				continue
			}
			out = append(out, CounterTotal{
				Name:   mf.GetName(),
				Labels: labelMap(metric),
				Value:  metric.GetCounter().GetValue(),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return labelKey(out[i].Labels) < labelKey(out[j].Labels)
	})
	return out
}

func labelMap(metric *dto.Metric) map[string]string {
	if len(metric.Label) == 0 {
		return nil
	}
	labels := make(map[string]string, len(metric.Label))
	for _, lp := range metric.Label {
		if lp == nil {
			continue
		}
		labels[lp.GetName()] = lp.GetValue()
	}
	return labels
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
