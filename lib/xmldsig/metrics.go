//
// Copyright (c) SAS Institute Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package xmldsig

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sassoftware/xmlsec/lib/sigerrors"
)

var (
	metricDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xmlsec_signature_seconds",
			Help:    "A histogram of latencies for signing and verifying documents",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"op"},
	)
	metricResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmlsec_signature_results",
			Help: "Signature operations by outcome",
		},
		[]string{"op", "result"},
	)
)

func record(op string, start time.Time, err error) {
	metricDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	switch {
	case err == nil:
	case sigerrors.IsVerificationFailed(err):
		result = "invalid"
	default:
		result = "error"
	}
	metricResults.WithLabelValues(op, result).Inc()
}
