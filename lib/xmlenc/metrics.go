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

package xmlenc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xmlsec_encryption_seconds",
			Help:    "A histogram of latencies for encrypting and decrypting data",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)
	metricErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmlsec_encryption_errors",
			Help: "Failed encryption operations",
		},
		[]string{"op"},
	)
)

func record(op string, start time.Time, err error) {
	metricDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metricErrors.WithLabelValues(op).Inc()
	}
}
