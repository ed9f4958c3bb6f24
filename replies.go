/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package titanircd

import "github.com/btnmasher/titanircd/shared/pool"

// stringSlice is a reusable, growable []string, recycled between NAMES/LIST
// reply builds so repeated roster snapshots don't churn a fresh allocation
// on every query. Satisfies shared/pool.Resettable.
type stringSlice struct {
	items []string
}

func (s *stringSlice) Reset() { s.items = s.items[:0] }

var stringSlicePool = pool.New[*stringSlice](func() *stringSlice { return &stringSlice{} })

// borrowStringSlice checks out a reset, empty *stringSlice from the pool.
func borrowStringSlice() *stringSlice {
	return stringSlicePool.New()
}

// release returns s to the pool for reuse.
func (s *stringSlice) release() {
	stringSlicePool.Recycle(s)
}
