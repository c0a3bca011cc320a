// Package partition splits a weighted segment sequence into contiguous chunks
// under a hard token limit.
//
// The problem is "split array into k parts, minimize the largest part" with a
// non-zero cost for every delimiter re-inserted between two segments of the same
// chunk. A chunk covering segments [s, e] weighs
//
//	sum(weights[s..e]) + joinCost*(e-s)
//
// # Algorithm
//
//  1. GroupsNeeded is a greedy left-to-right scan that counts how many chunks are
//     required when no chunk may exceed a capacity. It is non-increasing in the
//     capacity, which makes it a feasibility oracle for binary search.
//  2. OptimalCapacity fixes the chunk count at GroupsNeeded(limit), the fewest
//     chunks the limit allows, then binary-searches [max(weights), limit] for the
//     smallest capacity that still achieves that count. The smallest capacity is
//     the most balanced split among minimum-count solutions.
//  3. Build repeats the greedy scan at the optimized capacity and records the
//     ranges, recomputing each chunk weight independently.
//
// Plan runs all three and verifies the result:
//
//	plan, err := partition.Plan([]int{100, 100, 100, 100}, 10, 220)
//	// plan.Target == 2, plan.Capacity == 210
//	// plan.Chunks == [{(0,1) 210} {(2,3) 210}]
//
// # Preconditions
//
// The greedy scan undercounts when a single weight exceeds the capacity. The
// precondition is enforced in code: OptimalCapacity and Plan return
// ErrSegmentExceedsCapacity before searching. GroupsNeeded and Build stay total
// functions so property tests can check them directly.
//
// All functions are pure and safe for concurrent use.
package partition
