// Package vm reconciles domains against their desired configuration.
//
// The package only depends on the Domain Control Interface in
// internal/domain, so every operation here can be exercised against an
// in-memory Directory.
//
// Reconciliation:
//
// A single pass for one domain runs strictly in order:
//  1. Compute the change set (ComputeChangeSet). Reading never mutates.
//  2. Create the domain if it does not exist.
//  3. Decide whether it must be rebuilt (ReconcileOptions.Rebuild).
//  4. Decide whether it must be power-cycled: any change to label, template,
//     vcpus, virt_mode or kernel, or an outdated template-derived domain.
//  5. Remember whether it was running.
//  6. Halt it if a power-cycle is needed (PowerController.EnsureHalted).
//  7. Rebuild: remove, wait SettleDelay, create again.
//  8. Apply each change in order.
//  9. Start it if it autostarts or was running, otherwise halt it.
//  10. Refresh the handle.
//
// Halting:
//
// EnsureHalted is the only way this package stops a domain. A domain that
// serves network to running clients is powered off from inside (a graceful
// shutdown request would be refused); everything else gets a shutdown
// request. Either way the domain is polled every PollInterval for up to
// Timeout and then killed. Once started, the sequence ignores context
// cancellation.
//
// Batches of domains are driven by internal/batch; this package works on one
// domain at a time and a Handle must never be shared between goroutines.
package vm
