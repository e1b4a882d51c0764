// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package account_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/registry/account"
)

func TestWhitelistCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	cache, err := account.NewCache(server.Addr(), 0, time.Minute)
	require.NoError(t, err)
	defer func() { require.NoError(t, cache.Close()) }()

	_, ok := cache.Get(1, 2)
	require.False(t, ok)

	cache.Set(1, 2, true)
	cache.Set(1, 3, false)

	allowed, ok := cache.Get(1, 2)
	require.True(t, ok)
	require.True(t, allowed)

	// Denials are cached too; absence and denial are distinguishable.
	allowed, ok = cache.Get(1, 3)
	require.True(t, ok)
	require.False(t, allowed)

	// Edges are directional.
	_, ok = cache.Get(2, 1)
	require.False(t, ok)

	cache.Invalidate(1, 2)
	_, ok = cache.Get(1, 2)
	require.False(t, ok)

	// Entries fall out on their own after the ttl.
	cache.Set(4, 5, true)
	server.FastForward(2 * time.Minute)
	_, ok = cache.Get(4, 5)
	require.False(t, ok)
}

func TestCacheRequiresServer(t *testing.T) {
	_, err := account.NewCache("localhost:1", 0, time.Minute)
	require.Error(t, err)
}
