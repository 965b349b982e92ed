// Package ids provides validated value objects for every identifier and
// small scalar that crosses a component boundary in zjj: session and
// workspace names, agent ids, bead ids, priorities, lease durations, and
// absolute paths.
//
// Every type is constructed through a single fallible ParseX function.
// Once constructed, a value is trusted: nothing downstream re-validates it.
package ids
