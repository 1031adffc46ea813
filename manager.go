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

// Package cellar keeps a set of cooperating nodes in agreement about the groups
// of the cluster, the members of every group and the configuration scoped to
// every group.
//
// A Manager runs on every node. It joins and leaves the local node to groups,
// opens the channels of the groups the node belongs to and reconciles the
// local groups document with the shared configuration map.
package cellar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/group"
	"github.com/tochemey/cellar/internal/channels"
	"github.com/tochemey/cellar/internal/metric"
	"github.com/tochemey/cellar/internal/reconcile"
	"github.com/tochemey/cellar/internal/registry"
	"github.com/tochemey/cellar/internal/resync"
	"github.com/tochemey/cellar/internal/validation"
	"github.com/tochemey/cellar/internal/xsync"
	"github.com/tochemey/cellar/localconfig"
	"github.com/tochemey/cellar/log"
	"github.com/tochemey/cellar/shared"
	"github.com/tochemey/cellar/synchronizer"
	"github.com/tochemey/cellar/transport"
)

// Manager coordinates the group membership of the local node
type Manager struct {
	node    group.Node
	groups  shared.Map
	configs shared.Map
	local   localconfig.Store
	config  *config
	logger  log.Logger

	registry   *registry.Registry
	channels   *channels.Table
	reconciler *reconcile.Reconciler
	metric     *metric.ManagerMetric
	resync     *resync.Scheduler

	started   *atomic.Bool
	lifecycle sync.Mutex
	// serializes the transitions of the same group
	transitions *xsync.KeyedLock
	states      *xsync.Map[string, MembershipState]
	// makes the last membership check of concurrent leaves atomic
	leaveMu sync.Mutex
	// guards the read-modify-write of the node document
	nodeMu        sync.Mutex
	unsubscribers []func()
}

// New creates a Manager for node. groups holds the group entities and configs
// the shared configuration. The stores and the factory are owned by the caller
// and are not closed by the Manager.
func New(node group.Node, groups, configs shared.Map, local localconfig.Store, factory transport.Factory, opts ...Option) (*Manager, error) {
	if err := validation.NewEmptyStringValidator("node ID", node.ID).Validate(); err != nil {
		return nil, err
	}

	if groups == nil || configs == nil || local == nil || factory == nil {
		return nil, errors.New("cellar: the stores and the transport factory are required")
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt.Apply(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	managerMetric, err := metric.NewManagerMetric(metric.NewProvider(config.meterProvider).Meter())
	if err != nil {
		return nil, err
	}

	logger := config.logger.With("node", node.ID)
	reconciler := reconcile.New(configs, local, reconcile.Config{
		GroupsPID:          config.groupsPID,
		GroupsListProperty: config.groupsListProperty,
		ReservedPrefixes:   config.reservedPrefixes,
		Timeout:            config.operationTimeout,
		Logger:             logger,
		Metric:             managerMetric,
	})

	manager := &Manager{
		node:        node,
		groups:      groups,
		configs:     configs,
		local:       local,
		config:      config,
		logger:      logger,
		registry:    registry.New(groups, reconciler, logger),
		reconciler:  reconciler,
		metric:      managerMetric,
		started:     atomic.NewBool(false),
		transitions: xsync.NewKeyedLock(),
		states:      xsync.NewMap[string, MembershipState](),
	}

	manager.channels = channels.New(factory, manager.dispatch, logger)
	return manager, nil
}

// Start bootstraps the node: it registers the groups known locally, aligns the
// local configuration with the cluster, opens the default group channels and
// joins the groups of the node document.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.started.Load() {
		return nil
	}

	m.logger.Infof("cellar: starting node=%s", m.node)

	// groups recorded locally, the list is not written back
	names, err := m.reconciler.GroupNames(ctx)
	if err != nil {
		return fmt.Errorf("cellar: failed to read local groups: %w", err)
	}
	names.Add(group.Default)
	for _, name := range sortedNames(names) {
		if _, _, err := m.registry.CreateGroup(ctx, name); err != nil {
			m.logger.Warnf("cellar: failed to register group=%s: %v", name, err)
		}
	}

	if err := m.subscribe(ctx); err != nil {
		m.unsubscribe()
		return err
	}

	if err := m.reconciler.Bootstrap(ctx); err != nil {
		m.logger.Warnf("cellar: failed to align local configuration with the cluster: %v", err)
	}

	m.started.Store(true)

	if err := m.channels.Ensure(ctx, group.Default); err != nil {
		m.logger.Errorf("cellar: failed to open channels of group=%s: %v", group.Default, err)
	}

	memberships, err := m.memberships(ctx)
	if err != nil {
		m.logger.Warnf("cellar: failed to read the memberships of node=%s: %v", m.node, err)
	}
	for _, name := range sortedNames(memberships) {
		if err := m.Join(ctx, name); err != nil {
			m.logger.Warnf("cellar: failed to join group=%s: %v", name, err)
		}
	}

	if m.config.resyncInterval > 0 {
		m.resync = resync.New(m.config.resyncInterval, m.config.shutdownTimeout, m.antiEntropy, m.logger)
		if err := m.resync.Start(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warnf("cellar: failed to start periodic resync: %v", err)
		}
	}

	m.logger.Infof("cellar: node=%s started", m.node)
	return nil
}

// Stop removes the local node from every group it belongs to and closes the
// channels. The node document is kept so the memberships survive a restart.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if !m.started.Load() {
		return nil
	}

	m.logger.Infof("cellar: stopping node=%s", m.node)
	ctx, cancel := context.WithTimeout(ctx, m.config.shutdownTimeout)
	defer cancel()

	if m.resync != nil {
		m.resync.Stop(ctx)
		m.resync = nil
	}

	m.unsubscribe()
	m.started.Store(false)

	var err error
	localGroups, listErr := m.registry.ListForNode(ctx, m.node)
	if listErr != nil {
		err = multierr.Append(err, listErr)
	}
	for _, grp := range localGroups {
		if _, removeErr := m.registry.RemoveMember(ctx, grp.Name(), m.node); removeErr != nil {
			err = multierr.Append(err, removeErr)
		}
	}

	err = multierr.Append(err, m.channels.Close(ctx))
	m.states.Reset()

	if err != nil {
		m.logger.Warnf("cellar: node=%s stopped with errors: %v", m.node, err)
		return err
	}

	m.logger.Infof("cellar: node=%s stopped", m.node)
	return nil
}

// Join adds the local node to the group, creating the group when absent.
// Joining a group the node already belongs to is harmless.
func (m *Manager) Join(ctx context.Context, name string) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	if err := validation.NewGroupNameValidator(name).Validate(); err != nil {
		return err
	}

	unlock, err := m.transitions.Lock(ctx, name)
	if err != nil {
		return gerrors.NewErrTransitionInProgress(name, err)
	}
	defer unlock()

	logger := m.logger.With("group", name)
	previous := m.State(name)
	m.setState(name, Joining)

	_, created, err := m.registry.CreateGroup(ctx, name)
	if err != nil {
		m.setState(name, previous)
		return fmt.Errorf("cellar: failed to join group=%s: %w", name, err)
	}

	if created {
		m.persistGroupNames(ctx)
	}

	if err := m.channels.Ensure(ctx, name); err != nil {
		m.setState(name, previous)
		return fmt.Errorf("cellar: failed to join group=%s: %w", name, err)
	}

	grp, err := m.registry.AddMember(ctx, name, m.node)
	if err != nil {
		m.setState(name, previous)
		return fmt.Errorf("cellar: failed to join group=%s: %w", name, err)
	}

	m.setState(name, Member)
	m.metric.RecordJoin(ctx, name)

	if err := m.updateMemberships(ctx, func(names mapset.Set[string]) bool { return names.Add(name) }); err != nil {
		logger.Warnf("cellar: failed to record membership of group=%s: %v", name, err)
	}

	if err := m.synchronize(ctx, grp); err != nil {
		logger.Warnf("cellar: group=%s joined with synchronization failures: %v", name, err)
	}

	logger.Infof("cellar: node=%s joined group=%s", m.node, name)
	return nil
}

// Leave removes the local node from the group. The group itself is kept.
// Leaving the last group the node is member of is a silent no-op, so a
// started node always belongs to at least one group.
func (m *Manager) Leave(ctx context.Context, name string) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	unlock, err := m.transitions.Lock(ctx, name)
	if err != nil {
		return gerrors.NewErrTransitionInProgress(name, err)
	}
	defer unlock()

	logger := m.logger.With("group", name)
	previous, ok := m.beginLeave(name)
	if !ok {
		logger.Debugf("cellar: node=%s keeps group=%s, its last membership", m.node, name)
		return nil
	}

	if _, err := m.registry.RemoveMember(ctx, name, m.node); err != nil {
		m.setState(name, previous)
		return fmt.Errorf("cellar: failed to leave group=%s: %w", name, err)
	}

	// the default group channels stay open for the node lifetime
	if name != group.Default {
		if err := m.channels.Release(ctx, name); err != nil {
			logger.Warnf("cellar: failed to release channels of group=%s: %v", name, err)
		}
	}

	if err := m.updateMemberships(ctx, func(names mapset.Set[string]) bool {
		if !names.ContainsOne(name) {
			return false
		}
		names.Remove(name)
		return true
	}); err != nil {
		logger.Warnf("cellar: failed to record departure from group=%s: %v", name, err)
	}

	m.setState(name, NotMember)
	m.metric.RecordLeave(ctx, name)
	logger.Infof("cellar: node=%s left group=%s", m.node, name)
	return nil
}

// CreateGroup returns the group named name, creating it with a copy of the
// default group configuration when absent
func (m *Manager) CreateGroup(ctx context.Context, name string) (*group.Group, error) {
	if !m.started.Load() {
		return nil, gerrors.ErrManagerNotStarted
	}

	grp, created, err := m.registry.CreateGroup(ctx, name)
	if err != nil {
		return nil, err
	}

	if created {
		m.persistGroupNames(ctx)
	}
	return grp, nil
}

// DeleteGroup removes the group from the cluster. The local node leaves it first.
// Deleting the default group, or the last group the node is member of, is a no-op.
func (m *Manager) DeleteGroup(ctx context.Context, name string) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	if name == group.Default {
		return nil
	}

	if m.State(name) == Member {
		if err := m.Leave(ctx, name); err != nil {
			return err
		}
		if m.State(name) == Member {
			// the last membership of the node is kept, and so is its group
			return nil
		}
	}

	deleted, err := m.registry.DeleteGroup(ctx, name)
	if err != nil {
		return err
	}

	if deleted {
		m.persistGroupNames(ctx)
	}
	return nil
}

// Node returns the local node
func (m *Manager) Node() group.Node {
	return m.node
}

// ListAllGroups returns every group of the cluster
func (m *Manager) ListAllGroups(ctx context.Context) ([]*group.Group, error) {
	return m.registry.ListAll(ctx)
}

// FindGroupByName returns the group or errors.ErrGroupNotFound
func (m *Manager) FindGroupByName(ctx context.Context, name string) (*group.Group, error) {
	return m.registry.Find(ctx, name)
}

// ListLocalGroups returns the groups of the local node
func (m *Manager) ListLocalGroups(ctx context.Context) ([]*group.Group, error) {
	return m.registry.ListForNode(ctx, m.node)
}

// IsLocalGroup reports whether the local node belongs to the group
func (m *Manager) IsLocalGroup(ctx context.Context, name string) (bool, error) {
	grp, err := m.registry.Find(ctx, name)
	if err != nil {
		if errors.Is(err, gerrors.ErrGroupNotFound) {
			return false, nil
		}
		return false, err
	}
	return grp.HasMember(m.node), nil
}

// ListGroups returns the groups of the node
func (m *Manager) ListGroups(ctx context.Context, node group.Node) ([]*group.Group, error) {
	return m.registry.ListForNode(ctx, node)
}

// ListGroupNames returns the names of the groups of the node
func (m *Manager) ListGroupNames(ctx context.Context, node group.Node) ([]string, error) {
	groups, err := m.registry.ListForNode(ctx, node)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(groups))
	for _, grp := range groups {
		names = append(names, grp.Name())
	}
	return names, nil
}

// Producer returns the send side of a group the local node has channels for
func (m *Manager) Producer(name string) (transport.Producer, error) {
	producer, ok := m.channels.Producer(name)
	if !ok {
		return nil, gerrors.NewErrGroupNotFound(name)
	}
	return producer, nil
}

// State returns the membership state of the local node in the group
func (m *Manager) State(name string) MembershipState {
	state, ok := m.states.Get(name)
	if !ok {
		return NotMember
	}
	return state
}

// Resync invokes every synchronizer for the group again
func (m *Manager) Resync(ctx context.Context, name string) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	grp, err := m.registry.Find(ctx, name)
	if err != nil {
		return err
	}
	return m.synchronize(ctx, grp)
}

// ResyncConfig folds the whole shared configuration into the local groups document
func (m *Manager) ResyncConfig(ctx context.Context) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}
	return m.reconciler.Pull(ctx)
}

// antiEntropy is the periodic task. It replays the shared configuration and
// checks every membership of the node, since a lost groups notification
// would otherwise leave a membership unrepaired.
func (m *Manager) antiEntropy(ctx context.Context) error {
	err := m.ResyncConfig(ctx)
	return multierr.Append(err, m.sweepMemberships(ctx))
}

// sweepMemberships runs the membership repair for every group the node is
// tracking or is listed in
func (m *Manager) sweepMemberships(ctx context.Context) error {
	if !m.started.Load() {
		return gerrors.ErrManagerNotStarted
	}

	names := mapset.NewSet(m.states.Keys()...)
	listed, err := m.registry.ListForNode(ctx, m.node)
	for _, grp := range listed {
		names.Add(grp.Name())
	}

	for _, name := range sortedNames(names) {
		m.repair(name)
	}

	if err != nil {
		return fmt.Errorf("cellar: failed to list the groups of node=%s: %w", m.node, err)
	}
	return nil
}

// beginLeave moves the group to Leaving and returns its previous state.
// It refuses when the group is the only one the node is member of.
func (m *Manager) beginLeave(name string) (MembershipState, bool) {
	m.leaveMu.Lock()
	defer m.leaveMu.Unlock()

	previous := m.State(name)
	if previous == Member {
		others := 0
		m.states.Range(func(other string, state MembershipState) {
			if other != name && (state == Member || state == Joining) {
				others++
			}
		})
		if others == 0 {
			return previous, false
		}
	}

	m.setState(name, Leaving)
	return previous, true
}

func (m *Manager) setState(name string, state MembershipState) {
	if state == NotMember {
		m.states.Delete(name)
		return
	}
	m.states.Set(name, state)
}

func (m *Manager) subscribe(ctx context.Context) error {
	unsubscribeShared, err := m.configs.Subscribe(ctx, m.reconciler.HandleSharedChange)
	if err != nil {
		return fmt.Errorf("cellar: failed to subscribe to the shared configuration: %w", err)
	}
	m.unsubscribers = append(m.unsubscribers, unsubscribeShared)
	m.unsubscribers = append(m.unsubscribers, m.local.Subscribe(m.reconciler.HandleLocalChange))

	unsubscribeGroups, err := m.registry.Watch(ctx, m.repair)
	if err != nil {
		return fmt.Errorf("cellar: failed to subscribe to the groups: %w", err)
	}
	m.unsubscribers = append(m.unsubscribers, unsubscribeGroups)
	return nil
}

func (m *Manager) unsubscribe() {
	for _, unsubscribe := range m.unsubscribers {
		unsubscribe()
	}
	m.unsubscribers = nil
}

// repair puts back the local node in a group it is member of when a
// concurrent write of another node dropped it, and removes it from the
// groups it is not member of
func (m *Manager) repair(name string) {
	if !m.started.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.operationTimeout)
	defer cancel()

	unlock, err := m.transitions.Lock(ctx, name)
	if err != nil {
		m.logger.Debugf("cellar: skipping membership check of group=%s: %v", name, err)
		return
	}
	defer unlock()

	grp, err := m.registry.Find(ctx, name)
	if err != nil {
		return
	}

	switch state := m.State(name); {
	case state == Member && !grp.HasMember(m.node):
		m.logger.Infof("cellar: restoring membership of node=%s in group=%s", m.node, name)
		if _, err := m.registry.AddMember(ctx, name, m.node); err != nil {
			m.logger.Warnf("cellar: failed to restore membership in group=%s: %v", name, err)
		}
	case state == NotMember && grp.HasMember(m.node):
		m.logger.Infof("cellar: removing stale membership of node=%s in group=%s", m.node, name)
		if _, err := m.registry.RemoveMember(ctx, name, m.node); err != nil {
			m.logger.Warnf("cellar: failed to remove stale membership in group=%s: %v", name, err)
		}
	}
}

func (m *Manager) persistGroupNames(ctx context.Context) {
	names, err := m.registry.Names(ctx)
	if err != nil {
		m.logger.Warnf("cellar: failed to list groups: %v", err)
		return
	}
	if err := m.reconciler.SetGroupNames(ctx, names.ToSlice()); err != nil {
		m.logger.Warn(err)
	}
}

// memberships returns the groups recorded in the node document.
// A node without a recorded list, or with an empty one, belongs to the default group.
func (m *Manager) memberships(ctx context.Context) (mapset.Set[string], error) {
	dict, err := m.local.GetDocument(ctx, m.config.nodePID)
	if err != nil {
		return mapset.NewSet[string](), err
	}
	return m.membershipsOf(dict), nil
}

func (m *Manager) membershipsOf(dict localconfig.Dictionary) mapset.Set[string] {
	names := group.ParseNames(dict[m.config.groupsListProperty])
	if names.IsEmpty() {
		names.Add(group.Default)
	}
	return names
}

// updateMemberships applies fn to the membership list of the node document
// and persists it when fn reports a change
func (m *Manager) updateMemberships(ctx context.Context, fn func(names mapset.Set[string]) bool) error {
	m.nodeMu.Lock()
	defer m.nodeMu.Unlock()

	dict, err := m.local.GetDocument(ctx, m.config.nodePID)
	if err != nil {
		return err
	}

	_, recorded := dict[m.config.groupsListProperty]
	names := m.membershipsOf(dict)
	if !fn(names) && recorded {
		return nil
	}

	dict[m.config.groupsListProperty] = group.FormatNames(names)
	return m.local.UpdateDocument(ctx, m.config.nodePID, dict)
}

// synchronize runs every synchronizer for the group. A failure of one
// synchronizer does not stop the others.
func (m *Manager) synchronize(ctx context.Context, grp *group.Group) error {
	if len(m.config.synchronizers) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs error
		eg   errgroup.Group
	)

	eg.SetLimit(m.config.syncConcurrency)
	for _, syncer := range m.config.synchronizers {
		eg.Go(func() error {
			if err := runSynchronizer(ctx, syncer, grp.Clone()); err != nil {
				m.metric.RecordSyncFailure(ctx, grp.Name())
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("synchronizer=%s: %w", syncer.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}

	_ = eg.Wait()
	return errs
}

func runSynchronizer(ctx context.Context, syncer synchronizer.Synchronizer, grp *group.Group) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return syncer.Sync(ctx, grp)
}

// dispatch delivers inbound group events to the configured handler.
// The events emitted by the local node are dropped.
func (m *Manager) dispatch(ctx context.Context, event *transport.Event) {
	if event.Source.ID == m.node.ID {
		return
	}

	if m.config.eventHandler == nil {
		m.logger.Debugf("cellar: no handler for event=%s of group=%s", event.ID, event.Group)
		return
	}
	m.config.eventHandler(ctx, event)
}

func sortedNames(names mapset.Set[string]) []string {
	if names == nil {
		return nil
	}
	sorted := names.ToSlice()
	slices.Sort(sorted)
	return sorted
}
