// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package reconcile keeps the local groups document and the shared
// configuration map in agreement, in both directions, without looping.
//
// Local to shared: every group scoped key k of the local document is merged
// into the shared entry named after the first segment of k. The groups list
// property is written to the entry named codec.GroupsKey.
//
// Shared to local: every shared entry is folded back into the local document,
// which is persisted once per entry.
//
// Both directions record what they exchanged in a Watermark so the echo of
// a write is recognized and dropped.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/metric/noop"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/group"
	"github.com/tochemey/cellar/internal/codec"
	"github.com/tochemey/cellar/internal/metric"
	"github.com/tochemey/cellar/localconfig"
	"github.com/tochemey/cellar/log"
	"github.com/tochemey/cellar/shared"
)

// Config holds the reconciler settings
type Config struct {
	// GroupsPID is the id of the local groups document
	GroupsPID string
	// GroupsListProperty is the property of the groups document holding the group names
	GroupsListProperty string
	// ReservedPrefixes lists the key prefixes that never leave the node
	ReservedPrefixes []string
	// Timeout bounds the work triggered by one notification
	Timeout time.Duration
	Logger  log.Logger
	Metric  *metric.ManagerMetric
}

// Reconciler synchronizes the local groups document with the shared configuration map
type Reconciler struct {
	config    Config
	configs   shared.Map
	local     localconfig.Store
	watermark *Watermark
	logger    log.Logger
	metric    *metric.ManagerMetric

	// serializes every read-modify-write of the local groups document
	mu sync.Mutex
}

// New creates a Reconciler
func New(configs shared.Map, local localconfig.Store, config Config) *Reconciler {
	if config.Logger == nil {
		config.Logger = log.DiscardLogger
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Metric == nil {
		config.Metric, _ = metric.NewManagerMetric(noop.NewMeterProvider().Meter("cellar"))
	}
	return &Reconciler{
		config:    config,
		configs:   configs,
		local:     local,
		watermark: NewWatermark(),
		logger:    config.Logger,
		metric:    config.Metric,
	}
}

// Watermark returns the watermark of the reconciler
func (r *Reconciler) Watermark() *Watermark {
	return r.watermark
}

// HandleLocalChange is the localconfig.Listener of the reconciler
func (r *Reconciler) HandleLocalChange(pid string) {
	if pid != r.config.GroupsPID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()
	if err := r.Push(ctx); err != nil {
		r.logger.Warnf("reconcile: failed to push local configuration: %v", err)
	}
}

// HandleSharedChange is the shared.Listener of the reconciler
func (r *Reconciler) HandleSharedChange(event shared.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()
	if err := r.Apply(ctx, event); err != nil {
		r.logger.Warnf("reconcile: failed to apply shared entry=%s: %v", event.Key, err)
	}
}

// Push writes to the shared map the local keys whose value differs from the watermark
func (r *Reconciler) Push(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dict, err := r.local.GetDocument(ctx, r.config.GroupsPID)
	if err != nil {
		return err
	}

	// keys removed locally lose their record so a later re-add propagates
	for _, key := range r.watermark.Keys() {
		if _, ok := dict[key]; !ok {
			r.watermark.Forget(key)
		}
	}

	groupsList, scoped := r.translate(dict, true)

	var errs error
	pushed := 0
	if groupsList != nil {
		names := group.FormatNames(groupsList)
		if err := r.put(ctx, codec.GroupsKey, codec.NewGroupsList(groupsList)); err != nil {
			errs = errors.Join(errs, err)
		} else {
			r.watermark.Set(r.config.GroupsListProperty, names)
			pushed++
		}
	}

	for _, groupKey := range slices.Sorted(maps.Keys(scoped)) {
		changes := scoped[groupKey]
		merged, err := r.existingConfig(ctx, groupKey)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		maps.Copy(merged, changes)
		if err := r.put(ctx, groupKey, codec.NewGroupConfig(merged)); err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		r.watermark.Seed(changes)
		pushed += len(changes)
	}

	r.metric.RecordPush(ctx, pushed)
	return errs
}

// PushAll writes every group scoped local key and the groups list to the shared map
func (r *Reconciler) PushAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dict, err := r.local.GetDocument(ctx, r.config.GroupsPID)
	if err != nil {
		return err
	}

	groupsList, scoped := r.translate(dict, false)
	entries := make(map[string][]byte, len(scoped)+1)
	if groupsList != nil {
		payload, err := codec.EncodeEntry(codec.NewGroupsList(groupsList))
		if err != nil {
			return err
		}
		entries[codec.GroupsKey] = payload
	}

	for groupKey, config := range scoped {
		payload, err := codec.EncodeEntry(codec.NewGroupConfig(config))
		if err != nil {
			return err
		}
		entries[groupKey] = payload
	}

	if len(entries) == 0 {
		return nil
	}

	if err := r.configs.PutAll(ctx, entries); err != nil {
		return fmt.Errorf("reconcile: failed to push local configuration: %w", err)
	}

	if groupsList != nil {
		r.watermark.Set(r.config.GroupsListProperty, group.FormatNames(groupsList))
	}
	pushed := 0
	for _, config := range scoped {
		r.watermark.Seed(config)
		pushed += len(config)
	}
	r.metric.RecordPush(ctx, pushed)
	return nil
}

// Apply folds one shared change into the local document
func (r *Reconciler) Apply(ctx context.Context, event shared.Event) error {
	if event.NewValue == nil {
		// removed or evicted, nothing to fold
		return nil
	}

	entry, ok := r.decode(ctx, event.Key, event.NewValue)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dict, err := r.local.GetDocument(ctx, r.config.GroupsPID)
	if err != nil {
		return err
	}

	pending := make(map[string]string)
	r.fold(dict, event.Key, entry, pending)
	return r.persist(ctx, dict, pending)
}

// Pull folds every shared entry into the local document and persists it once
func (r *Reconciler) Pull(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pull(ctx, false)
}

// Bootstrap aligns a starting node with the cluster. The first node pushes
// its local configuration. Any other node seeds the watermark with its
// local document and pulls the shared map.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	keys, err := r.configs.Keys(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: failed to list shared configuration: %w", err)
	}

	if len(keys) == 0 {
		r.logger.Debug("reconcile: shared configuration is empty, pushing local configuration")
		return r.PushAll(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pull(ctx, true)
}

// CopyGroupConfig adds, for every local key prefixed with source, the same key
// prefixed with target. The source keys are left untouched.
func (r *Reconciler) CopyGroupConfig(ctx context.Context, source, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dict, err := r.local.GetDocument(ctx, r.config.GroupsPID)
	if err != nil {
		return err
	}

	sourcePrefix := source + "."
	changed := 0
	for _, key := range slices.Sorted(maps.Keys(dict)) {
		rest, ok := strings.CutPrefix(key, sourcePrefix)
		if !ok {
			continue
		}
		copied := target + "." + rest
		if current, ok := dict[copied]; !ok || current != dict[key] {
			dict[copied] = dict[key]
			changed++
		}
	}

	if changed == 0 {
		return nil
	}

	if err := r.local.UpdateDocument(ctx, r.config.GroupsPID, dict); err != nil {
		return fmt.Errorf("reconcile: failed to copy group=%s into group=%s: %w", source, target, err)
	}
	return nil
}

// GroupNames returns the group names recorded in the local groups document
func (r *Reconciler) GroupNames(ctx context.Context) (mapset.Set[string], error) {
	dict, err := r.local.GetDocument(ctx, r.config.GroupsPID)
	if err != nil {
		return nil, err
	}
	return group.ParseNames(dict[r.config.GroupsListProperty]), nil
}

// SetGroupNames writes the group names into the local groups document.
// The watermark is left alone so the change propagates to the shared map.
func (r *Reconciler) SetGroupNames(ctx context.Context, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dict, err := r.local.GetDocument(ctx, r.config.GroupsPID)
	if err != nil {
		return err
	}

	formatted := group.FormatNames(group.ParseNames(strings.Join(names, ",")))
	if current, ok := dict[r.config.GroupsListProperty]; ok && group.SameNames(current, formatted) {
		return nil
	}

	dict[r.config.GroupsListProperty] = formatted
	if err := r.local.UpdateDocument(ctx, r.config.GroupsPID, dict); err != nil {
		return fmt.Errorf("reconcile: failed to persist group names: %w", err)
	}
	return nil
}

// pull must be called with mu held
func (r *Reconciler) pull(ctx context.Context, seed bool) error {
	dict, err := r.local.GetDocument(ctx, r.config.GroupsPID)
	if err != nil {
		return err
	}

	if seed {
		groupsList, scoped := r.translate(dict, false)
		if groupsList != nil {
			r.watermark.Set(r.config.GroupsListProperty, group.FormatNames(groupsList))
		}
		for _, config := range scoped {
			r.watermark.Seed(config)
		}
	}

	keys, err := r.configs.Keys(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: failed to list shared configuration: %w", err)
	}

	pending := make(map[string]string)
	for _, key := range keys {
		payload, err := r.configs.Get(ctx, key)
		if err != nil {
			if errors.Is(err, gerrors.ErrKeyNotFound) {
				continue
			}
			return fmt.Errorf("reconcile: failed to read shared entry=%s: %w", key, err)
		}

		entry, ok := r.decode(ctx, key, payload)
		if !ok {
			continue
		}
		r.fold(dict, key, entry, pending)
	}

	return r.persist(ctx, dict, pending)
}

// translate splits the local document into the groups list and the group
// scoped keys. When pending is set, keys matching the watermark are left out.
// A nil groups list means the property is absent or unchanged.
func (r *Reconciler) translate(dict localconfig.Dictionary, pending bool) (groupsList mapset.Set[string], scoped map[string]map[string]string) {
	scoped = make(map[string]map[string]string)
	for _, key := range slices.Sorted(maps.Keys(dict)) {
		value := dict[key]
		if r.reserved(key) {
			continue
		}

		if key == r.config.GroupsListProperty {
			names := group.ParseNames(value)
			if pending && r.watermark.Matches(key, group.FormatNames(names)) {
				continue
			}
			groupsList = names
			continue
		}

		index := strings.IndexByte(key, '.')
		if index <= 0 {
			r.logger.Debugf("reconcile: key=%s is not group scoped, skipping", key)
			continue
		}

		if pending && r.watermark.Matches(key, value) {
			continue
		}

		groupKey := key[:index]
		if scoped[groupKey] == nil {
			scoped[groupKey] = make(map[string]string)
		}
		scoped[groupKey][key] = value
	}
	return groupsList, scoped
}

// fold merges entry into dict and records every changed key in pending.
// The watermark is only moved by persist once the local write succeeded.
func (r *Reconciler) fold(dict localconfig.Dictionary, key string, entry codec.Entry, pending map[string]string) {
	property := r.config.GroupsListProperty
	if key == codec.GroupsKey {
		if entry.Kind() != codec.GroupsListEntry {
			r.malformed(key, fmt.Errorf("expected a groups list, got %s", entry.Kind()))
			return
		}
		if group.ParseNames(dict[property]).Equal(entry.Groups()) {
			if _, ok := dict[property]; ok {
				return
			}
		}
		names := group.FormatNames(entry.Groups())
		dict[property] = names
		pending[property] = names
		return
	}

	if entry.Kind() != codec.GroupConfigEntry {
		r.malformed(key, fmt.Errorf("expected a group config, got %s", entry.Kind()))
		return
	}

	for _, innerKey := range slices.Sorted(maps.Keys(entry.Config())) {
		if r.reserved(innerKey) {
			continue
		}
		value := entry.Config()[innerKey]
		if current, ok := dict[innerKey]; ok && current == value {
			continue
		}
		dict[innerKey] = value
		pending[innerKey] = value
	}
}

// persist writes dict and, on success only, records pending in the watermark.
// A failed write leaves the watermark at the value the local document still
// holds, so a later push cannot take the stale value for an echo and overwrite
// the newer shared entry. Must be called with mu held.
func (r *Reconciler) persist(ctx context.Context, dict localconfig.Dictionary, pending map[string]string) error {
	if len(pending) == 0 {
		return nil
	}
	if err := r.local.UpdateDocument(ctx, r.config.GroupsPID, dict); err != nil {
		return fmt.Errorf("reconcile: failed to persist local configuration: %w", err)
	}
	r.watermark.Seed(pending)
	r.metric.RecordPull(ctx, len(pending))
	return nil
}

func (r *Reconciler) existingConfig(ctx context.Context, groupKey string) (map[string]string, error) {
	payload, err := r.configs.Get(ctx, groupKey)
	switch {
	case errors.Is(err, gerrors.ErrKeyNotFound):
		return make(map[string]string), nil
	case err != nil:
		return nil, fmt.Errorf("reconcile: failed to read shared entry=%s: %w", groupKey, err)
	}

	entry, ok := r.decode(ctx, groupKey, payload)
	if !ok || entry.Kind() != codec.GroupConfigEntry {
		// replaced by a well formed entry
		return make(map[string]string), nil
	}

	config := entry.Config()
	if config == nil {
		config = make(map[string]string)
	}
	return config, nil
}

func (r *Reconciler) put(ctx context.Context, key string, entry codec.Entry) error {
	payload, err := codec.EncodeEntry(entry)
	if err != nil {
		return err
	}
	if err := r.configs.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("reconcile: failed to write shared entry=%s: %w", key, err)
	}
	return nil
}

func (r *Reconciler) decode(ctx context.Context, key string, payload []byte) (codec.Entry, bool) {
	entry, err := codec.DecodeEntry(payload)
	if err != nil {
		r.metric.RecordMalformed(ctx)
		r.logger.Warn(gerrors.NewErrMalformedEntry(key, err))
		return codec.Entry{}, false
	}
	return entry, true
}

func (r *Reconciler) malformed(key string, err error) {
	r.metric.RecordMalformed(context.Background())
	r.logger.Warn(gerrors.NewErrMalformedEntry(key, err))
}

func (r *Reconciler) reserved(key string) bool {
	for _, prefix := range r.config.ReservedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
