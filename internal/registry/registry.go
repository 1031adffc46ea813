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

// Package registry keeps the groups of the cluster in the shared groups map.
// Every entry is a group encoded by internal/codec and keyed by the group name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	gerrors "github.com/tochemey/cellar/errors"
	"github.com/tochemey/cellar/group"
	"github.com/tochemey/cellar/internal/codec"
	"github.com/tochemey/cellar/internal/validation"
	"github.com/tochemey/cellar/log"
	"github.com/tochemey/cellar/shared"
)

// Copier materializes the configuration of a new group from an existing one
type Copier interface {
	CopyGroupConfig(ctx context.Context, source, target string) error
}

// Registry reads and writes the groups of the shared groups map
type Registry struct {
	groups shared.Map
	copier Copier
	logger log.Logger
}

// New creates a Registry. copier may be nil, in which case new groups start without configuration.
func New(groups shared.Map, copier Copier, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Registry{
		groups: groups,
		copier: copier,
		logger: logger,
	}
}

// CreateGroup returns the group named name, creating it when absent.
// A new group receives a copy of the default group configuration.
// The boolean result reports whether this call stored the group.
func (r *Registry) CreateGroup(ctx context.Context, name string) (*group.Group, bool, error) {
	if err := validation.NewGroupNameValidator(name).Validate(); err != nil {
		return nil, false, err
	}

	existing, err := r.Find(ctx, name)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, gerrors.ErrGroupNotFound):
		return nil, false, err
	}

	// the copy is deterministic, racing creators converge on the same keys
	if name != group.Default && r.copier != nil {
		if err := r.copier.CopyGroupConfig(ctx, group.Default, name); err != nil {
			r.logger.Warnf("registry: failed to copy the configuration of group=%s into group=%s: %v", group.Default, name, err)
		}
	}

	grp := group.New(name)
	payload, err := codec.EncodeGroup(grp)
	if err != nil {
		return nil, false, err
	}

	stored, err := r.groups.PutIfAbsent(ctx, name, payload)
	if err != nil {
		return nil, false, fmt.Errorf("registry: failed to create group=%s: %w", name, err)
	}

	if !stored {
		// another node won the race
		existing, err := r.Find(ctx, name)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	r.logger.Debugf("registry: group=%s created", name)
	return grp, true, nil
}

// DeleteGroup removes the group and reports whether it was removed.
// The default group is never removed.
func (r *Registry) DeleteGroup(ctx context.Context, name string) (bool, error) {
	if name == group.Default {
		return false, nil
	}

	if _, err := r.groups.Get(ctx, name); err != nil {
		if errors.Is(err, gerrors.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("registry: failed to read group=%s: %w", name, err)
	}

	if err := r.groups.Remove(ctx, name); err != nil {
		return false, fmt.Errorf("registry: failed to delete group=%s: %w", name, err)
	}
	return true, nil
}

// Find returns the group or errors.ErrGroupNotFound
func (r *Registry) Find(ctx context.Context, name string) (*group.Group, error) {
	payload, err := r.groups.Get(ctx, name)
	if err != nil {
		if errors.Is(err, gerrors.ErrKeyNotFound) {
			return nil, gerrors.NewErrGroupNotFound(name)
		}
		return nil, fmt.Errorf("registry: failed to read group=%s: %w", name, err)
	}

	grp, err := codec.DecodeGroup(payload)
	if err != nil {
		return nil, gerrors.NewErrMalformedEntry(name, err)
	}
	return grp, nil
}

// ListAll returns every group ordered by name. Undecodable entries are skipped.
func (r *Registry) ListAll(ctx context.Context) ([]*group.Group, error) {
	keys, err := r.groups.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list groups: %w", err)
	}

	groups := make([]*group.Group, 0, len(keys))
	for _, key := range keys {
		grp, err := r.Find(ctx, key)
		if err != nil {
			if errors.Is(err, gerrors.ErrGroupNotFound) {
				// removed in between
				continue
			}
			if errors.Is(err, gerrors.ErrMalformedEntry) {
				r.logger.Warn(err)
				continue
			}
			return nil, err
		}
		groups = append(groups, grp)
	}

	slices.SortFunc(groups, func(a, b *group.Group) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return groups, nil
}

// ListForNode returns the groups the node is a member of
func (r *Registry) ListForNode(ctx context.Context, node group.Node) ([]*group.Group, error) {
	groups, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(groups, func(grp *group.Group) bool {
		return !grp.HasMember(node)
	}), nil
}

// Names returns the set of group names
func (r *Registry) Names(ctx context.Context) (mapset.Set[string], error) {
	keys, err := r.groups.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to list groups: %w", err)
	}
	return mapset.NewSet(keys...), nil
}

// AddMember adds the node to the group, creating an empty group when absent.
// The whole group value is read, modified and written back.
func (r *Registry) AddMember(ctx context.Context, name string, node group.Node) (*group.Group, error) {
	grp, err := r.Find(ctx, name)
	switch {
	case errors.Is(err, gerrors.ErrGroupNotFound):
		grp = group.New(name)
	case err != nil:
		return nil, err
	}

	if !grp.AddMember(node) {
		return grp, nil
	}

	if err := r.Save(ctx, grp); err != nil {
		return nil, err
	}
	return grp, nil
}

// RemoveMember removes the node from the group. A missing group is not an error.
func (r *Registry) RemoveMember(ctx context.Context, name string, node group.Node) (*group.Group, error) {
	grp, err := r.Find(ctx, name)
	switch {
	case errors.Is(err, gerrors.ErrGroupNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	if !grp.RemoveMember(node) {
		return grp, nil
	}

	if err := r.Save(ctx, grp); err != nil {
		return nil, err
	}
	return grp, nil
}

// Save writes the group
func (r *Registry) Save(ctx context.Context, grp *group.Group) error {
	payload, err := codec.EncodeGroup(grp)
	if err != nil {
		return err
	}
	if err := r.groups.Put(ctx, grp.Name(), payload); err != nil {
		return fmt.Errorf("registry: failed to write group=%s: %w", grp.Name(), err)
	}
	return nil
}

// Watch calls fn with the group name of every change of the groups map
func (r *Registry) Watch(ctx context.Context, fn func(name string)) (func(), error) {
	return r.groups.Subscribe(ctx, func(event shared.Event) {
		fn(event.Key)
	})
}
