/*
 * MIT License
 *
 * Copyright (c) 2022-2025 Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ManagerMetric defines the group manager instrumentation
type ManagerMetric struct {
	// Specifies the total number of joins completed
	joinCount metric.Int64Counter
	// Specifies the total number of leaves completed
	leaveCount metric.Int64Counter
	// Specifies the total number of synchronizer failures
	syncFailureCount metric.Int64Counter
	// Specifies the total number of local keys written to the shared map
	configPushCount metric.Int64Counter
	// Specifies the total number of shared keys folded into the local document
	configPullCount metric.Int64Counter
	// Specifies the total number of ignored shared entries
	malformedCount metric.Int64Counter
}

// NewManagerMetric creates an instance of ManagerMetric
func NewManagerMetric(meter metric.Meter) (*ManagerMetric, error) {
	managerMetric := new(ManagerMetric)
	var err error
	if managerMetric.joinCount, err = meter.Int64Counter(
		"cellar_group_join_count",
		metric.WithDescription("Total number of group joins"),
	); err != nil {
		return nil, fmt.Errorf("failed to create joinCount instrument, %w", err)
	}

	if managerMetric.leaveCount, err = meter.Int64Counter(
		"cellar_group_leave_count",
		metric.WithDescription("Total number of group leaves"),
	); err != nil {
		return nil, fmt.Errorf("failed to create leaveCount instrument, %w", err)
	}

	if managerMetric.syncFailureCount, err = meter.Int64Counter(
		"cellar_sync_failure_count",
		metric.WithDescription("Total number of synchronizer failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create syncFailureCount instrument, %w", err)
	}

	if managerMetric.configPushCount, err = meter.Int64Counter(
		"cellar_config_push_count",
		metric.WithDescription("Total number of configuration keys written to the shared map"),
	); err != nil {
		return nil, fmt.Errorf("failed to create configPushCount instrument, %w", err)
	}

	if managerMetric.configPullCount, err = meter.Int64Counter(
		"cellar_config_pull_count",
		metric.WithDescription("Total number of configuration keys written to the local document"),
	); err != nil {
		return nil, fmt.Errorf("failed to create configPullCount instrument, %w", err)
	}

	if managerMetric.malformedCount, err = meter.Int64Counter(
		"cellar_malformed_entry_count",
		metric.WithDescription("Total number of ignored malformed shared entries"),
	); err != nil {
		return nil, fmt.Errorf("failed to create malformedCount instrument, %w", err)
	}

	return managerMetric, nil
}

// RecordJoin counts a completed join of the group
func (x *ManagerMetric) RecordJoin(ctx context.Context, group string) {
	x.joinCount.Add(ctx, 1, groupAttribute(group))
}

// RecordLeave counts a completed leave of the group
func (x *ManagerMetric) RecordLeave(ctx context.Context, group string) {
	x.leaveCount.Add(ctx, 1, groupAttribute(group))
}

// RecordSyncFailure counts a failed synchronizer run for the group
func (x *ManagerMetric) RecordSyncFailure(ctx context.Context, group string) {
	x.syncFailureCount.Add(ctx, 1, groupAttribute(group))
}

// RecordPush counts the keys written to the shared map
func (x *ManagerMetric) RecordPush(ctx context.Context, keys int) {
	if keys > 0 {
		x.configPushCount.Add(ctx, int64(keys))
	}
}

// RecordPull counts the keys written to the local document
func (x *ManagerMetric) RecordPull(ctx context.Context, keys int) {
	if keys > 0 {
		x.configPullCount.Add(ctx, int64(keys))
	}
}

// RecordMalformed counts an ignored shared entry
func (x *ManagerMetric) RecordMalformed(ctx context.Context) {
	x.malformedCount.Add(ctx, 1)
}

func groupAttribute(group string) metric.AddOption {
	return metric.WithAttributes(attribute.String("group", group))
}
