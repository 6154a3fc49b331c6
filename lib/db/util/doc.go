// Package util holds small helpers shared by the cache engines:
//
//   - functions: seeded FNV-1a string hashing, random seeds and the millisecond clock
//   - mapheap: a keyed min-heap of deadlines used by the garbage collector
package util
