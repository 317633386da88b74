// Package domain models community hazard reports, safe destinations and the
// spatial queries the escape planner and danger watch are built on.
//
// # Hazard Reports
//
// Reports arrive from the community reporting surface as flat JSON, one per
// message on the hazard topic:
//
//	{"id":"r-3","lat":-23.5485,"lng":-46.6425,"severity":"danger","type":"flood"}
//
// Two severity scales are accepted. The map scale (normal, warning, danger) is
// used as-is. The report-form scale is folded onto it:
//
//	low → normal | moderate → warning | high, critical → danger
//
// Category is one of flood, disaster or other; anything else becomes other.
// Reports without an ID get a deterministic SHA-256 based one (see [generateID])
// so replays supersede rather than duplicate.
//
// # Hazard Buffers
//
// Only danger reports project an exclusion buffer: a circle of
// [DefaultBufferRadius] meters around the report. Warning and normal reports
// are displayed by the map but never block a destination or a route.
//
// Distances are great-circle (haversine) meters. Boundaries are inclusive: a
// point exactly one radius away from a danger report is in danger.
//
// # Snapshots
//
// [HazardIndex] publishes immutable [Snapshot] values. Every mutation (new
// reports, tombstones, a reloaded safe-location catalog) builds a new snapshot
// and swaps it in atomically, so readers never observe a half-applied update
// and never need a lock.
package domain
