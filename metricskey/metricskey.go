package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfCryptoOperation is perf metric
	PerfCryptoOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_crypto",
		Help:         "perf_crypto provides the sample metrics of token operations",
		RequiredTags: []string{"provider", "action"},
	}

	// PerfCSROperation is perf metric
	PerfCSROperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_csr",
		Help:         "perf_csr provides the sample metrics of certificate request creation",
		RequiredTags: []string{"action"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfCryptoOperation,
	&PerfCSROperation,
}
