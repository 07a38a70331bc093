// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-s3crawl.
//
// go-s3crawl is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package factory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/jeremyhahn/go-s3crawl/pkg/common"
)

// StoreCreator is a function that creates an object store backend.
type StoreCreator func(settings map[string]string) (common.ObjectStore, error)

var (
	registryMu    sync.RWMutex
	storeRegistry = make(map[string]StoreCreator)
)

// RegisterStore registers an object store backend creator.
func RegisterStore(backendType string, creator StoreCreator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	storeRegistry[backendType] = creator
}

// NewStore creates a new object store backend based on the given type.
func NewStore(backendType string, settings map[string]string) (common.ObjectStore, error) {
	registryMu.RLock()
	creator, exists := storeRegistry[backendType]
	registryMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backendType)
	}
	return creator(settings)
}

// Backends returns the registered backend types in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(storeRegistry))
	for name := range storeRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// configured is the creator shared by backends with a zero-argument
// constructor and a Configure method.
func configured[S interface {
	common.ObjectStore
	common.Configurable
}](newStore func() S) StoreCreator {
	return func(settings map[string]string) (common.ObjectStore, error) {
		store := newStore()
		if err := store.Configure(settings); err != nil {
			return nil, err
		}
		return store, nil
	}
}
