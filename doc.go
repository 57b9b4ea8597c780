// Package mlcr implements a multi-level, in-application checkpoint/restart
// library for parallel HPC simulations. Application processes periodically
// hand their in-memory state to the library via Protect and Checkpoint; the
// library persists it redundantly across several storage tiers (local copy,
// partner copy, group erasure coding, parallel filesystem or object storage)
// so a later run, possibly on different nodes, can resume from the most
// recent surviving copy.
//
// The four core mechanisms live in subpackages: registry (protected
// variable bookkeeping), level (per-tier policy and selection), head (the
// dedicated-head offload protocol), scheduler (checkpoint cadence), notify
// (the notification-driven adaptive regulator), controller (the
// orchestrating state machine), recovery (tier scan and rehydration) and
// inject (fault injection for silent-data-corruption experiments). Package
// mlcr is the facade that threads a single Facade value through every
// operation, replacing the four process-wide singletons of the design this
// library generalizes.
package mlcr

// Timeout model
//
// Library operations are bounded by two timers:
//  1. The caller-provided context deadline/cancellation, which propagates
//     across every blocking call (head receives, file I/O retries).
//  2. The offload latency bound of exactly one checkpoint period: a rank
//     with an outstanding offload drains its previous reply before starting
//     its next Checkpoint, so a stuck head can delay at most one cycle.
//
// Canceling a context ends only the blocking call it was passed to;
// shutdown of the protocol is the cooperative Finalize/Abort handshake.
