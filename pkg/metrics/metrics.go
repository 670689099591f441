// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// serializerNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	serializerNamespace = "garden"
	serializerSubsystem = "serializer"

	formatLabelName  = "format"
	outcomeLabelName = "outcome"
	backendLabelName = "backend"
	statusLabelName  = "status"
)

// 代理解析结果标签值。
const (
	OutcomeCollectionReclassified = "collection_reclassified"
	OutcomeCollectionVirtual      = "collection_virtual"
	OutcomeVirtualSkipped         = "virtual_skipped"
	OutcomeNotProxy               = "not_proxy"
	OutcomePolicySkipped          = "policy_skipped"
	OutcomeLoaded                 = "loaded"
	OutcomeLoadFailed             = "load_failed"

	StatusSuccess = "success"
	StatusFail    = "fail"
)

var (
	// buckets 为耗时直方图的桶划分，单位为毫秒。
	// [0.1 0.2 0.4 ... 3276.8]
	buckets = prometheus.ExponentialBuckets(0.1, 2, 16)

	ProxyResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serializerNamespace,
			Subsystem: serializerSubsystem,
			Name:      "proxy_resolve_total",
			Help:      "pre-serialize proxy resolution outcomes",
		}, []string{outcomeLabelName})

	ProxyRedispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serializerNamespace,
			Subsystem: serializerSubsystem,
			Name:      "proxy_redispatch_total",
			Help:      "pre-serialize events re-dispatched under the proxy real class",
		}, []string{backendLabelName})

	ProxyLoadLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: serializerNamespace,
			Subsystem: serializerSubsystem,
			Name:      "proxy_load_latency",
			Help:      "forced proxy load latency in milliseconds",
			Buckets:   buckets,
		}, []string{backendLabelName})

	SerializeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serializerNamespace,
			Subsystem: serializerSubsystem,
			Name:      "serialize_total",
			Help:      "serialize calls by format and status",
		}, []string{formatLabelName, statusLabelName})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只有第一次生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(ProxyResolveTotal)
		r.MustRegister(ProxyRedispatchTotal)
		r.MustRegister(ProxyLoadLatency)
		r.MustRegister(SerializeTotal)
		metricRegisterer = r
	})
}
