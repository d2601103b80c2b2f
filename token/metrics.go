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

package token

import (
	"crypto"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5}

	MetricOperations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xmlsec_provider_operation_seconds",
			Help:    "A histogram of latencies for crypto provider operations",
			Buckets: buckets,
		},
		[]string{"provider", "op"},
	)
	MetricErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmlsec_provider_errors",
			Help: "Failed crypto provider operations",
		},
		[]string{"provider", "op"},
	)
)

// Metrics wraps a provider and records the latency and failures of each
// operation. Keys created through it are bound to the wrapper.
type Metrics struct {
	Provider
}

func observe(name, op string, start time.Time, err error) {
	MetricOperations.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		MetricErrors.WithLabelValues(name, op).Inc()
	}
}

func (m Metrics) NewKey(kind KeyKind) (*Key, error) {
	return NewKeyFor(m, kind)
}

func (m Metrics) NewDigest(hash crypto.Hash) (d DigestContext, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "digest", start, err)
	}(time.Now())
	return m.Provider.NewDigest(hash)
}

func (m Metrics) Sign(key *Key, opts crypto.SignerOpts, digest []byte) (sig []byte, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "sign", start, err)
	}(time.Now())
	return m.Provider.Sign(key, opts, digest)
}

func (m Metrics) Verify(key *Key, opts crypto.SignerOpts, digest, sig []byte) (ok bool, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "verify", start, err)
	}(time.Now())
	return m.Provider.Verify(key, opts, digest, sig)
}

func (m Metrics) MAC(key *Key, hash crypto.Hash, data []byte) (mac []byte, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "mac", start, err)
	}(time.Now())
	return m.Provider.MAC(key, hash, data)
}

func (m Metrics) Encrypt(key *Key, mode CipherMode, plaintext []byte) (out []byte, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "encrypt", start, err)
	}(time.Now())
	return m.Provider.Encrypt(key, mode, plaintext)
}

func (m Metrics) Decrypt(key *Key, mode CipherMode, ciphertext []byte) (out []byte, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "decrypt", start, err)
	}(time.Now())
	return m.Provider.Decrypt(key, mode, ciphertext)
}

func (m Metrics) WrapKey(key *Key, mode WrapMode, cek []byte) (out []byte, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "wrap", start, err)
	}(time.Now())
	return m.Provider.WrapKey(key, mode, cek)
}

func (m Metrics) UnwrapKey(key *Key, mode WrapMode, wrapped []byte) (out []byte, err error) {
	defer func(start time.Time) {
		observe(m.Name(), "unwrap", start, err)
	}(time.Now())
	return m.Provider.UnwrapKey(key, mode, wrapped)
}
