// Package retention removes snapshot artifacts older than the retention
// period.
//
// Only direct entries of the destination whose names start with
// "backup_" are considered. Age is judged by modification time, so a
// snapshot is eligible once its mtime is before now minus the retention
// period. Entries without the prefix are never touched.
//
// Removal failures are collected in the [Report] and never abort the
// sweep; callers decide how loudly to surface them.
package retention
