// Copyright 2025 The fawa Authors
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Storage forms recorded by StorePuts.
const (
	FormSingle   = "single"
	FormChunked  = "chunked"
	FormFallback = "fallback"
)

// Outcomes recorded by StoreGets.
const (
	GetSingle   = "single"
	GetChunked  = "chunked"
	GetFallback = "fallback"
	GetMiss     = "miss"
)

var (
	StorePuts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "store",
			Name:      "puts_total",
			Help:      "Documents written, by storage form",
		},
		[]string{"form"},
	)

	StoreGets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "store",
			Name:      "gets_total",
			Help:      "Document reads, by where the text was found",
		},
		[]string{"result"},
	)

	StoreBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docsearch",
			Subsystem: "store",
			Name:      "stored_bytes",
			Help:      "Size of payloads written to the remote backend",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	CompressionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "store",
			Name:      "compression_failures_total",
			Help:      "Payloads stored raw because compression failed",
		},
	)

	ClearErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docsearch",
			Subsystem: "store",
			Name:      "clear_errors_total",
			Help:      "Clear calls where at least one cleanup step failed",
		},
	)
)

func init() {
	prometheus.MustRegister(StorePuts)
	prometheus.MustRegister(StoreGets)
	prometheus.MustRegister(StoreBytes)
	prometheus.MustRegister(CompressionFailures)
	prometheus.MustRegister(ClearErrors)
}
