// Package metrics holds the Prometheus recorders of each papshop process.
// Every constructor accepts a nil registerer and then returns a recorder whose
// methods do nothing, so services never nil-check their metrics.
package metrics

const namespace = "papshop"

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func outcomeOf(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
