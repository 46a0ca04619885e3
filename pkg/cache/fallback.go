// Copyright 2026 © The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"github.com/chorusml/chorus/pkg/resilience"
)

// Storage strategy names, in default fallback order. The in-process
// tiered cache is the primary; the degraded modes serve reads only or
// nothing at all.
const (
	StrategyMemoryCache  = "memory_cache"
	StrategyLocalStorage = "local_storage"
	StrategyReadOnly     = "read_only_mode"
	StrategyOffline      = "offline_mode"
)

// CatalogAlternatives is the storage fallback catalog, ready to
// register with a fallback manager.
func CatalogAlternatives() []resilience.Alternative {
	return []resilience.Alternative{
		{Name: StrategyMemoryCache, Priority: 1, BaselineQuality: 0.9},
		{Name: StrategyLocalStorage, Priority: 2, BaselineQuality: 0.6},
		{Name: StrategyReadOnly, Priority: 3, BaselineQuality: 0.3},
		{Name: StrategyOffline, Priority: 4, BaselineQuality: 0.1},
	}
}
