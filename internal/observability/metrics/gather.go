package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// CounterValue sums the samples of the counter family name whose labels
// contain every pair of match. A missing family reads as zero.
func CounterValue(g prometheus.Gatherer, name string, match map[string]string) (float64, error) {
	families, err := g.Gather()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, family := range families {
		if family.GetName() != name || family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range family.GetMetric() {
			if labelsMatch(m.GetLabel(), match) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total, nil
}

func labelsMatch(pairs []*dto.LabelPair, match map[string]string) bool {
	found := 0
	for _, pair := range pairs {
		want, ok := match[pair.GetName()]
		if !ok {
			continue
		}
		if pair.GetValue() != want {
			return false
		}
		found++
	}
	return found == len(match)
}
