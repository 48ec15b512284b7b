// Package testutil provides deterministic test data for shard and page
// tests.
//
//	rng := testutil.NewRNG(7)
//	objs := rng.Objects(200, 300) // 200 payloads of 0..299 random bytes
//
// This package is intended for use in tests only.
package testutil
