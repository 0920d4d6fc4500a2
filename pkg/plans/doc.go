// Package plans is the single declarative source of plan capabilities:
// which features and resource limits each plan type grants. Both the
// feature-gate check and UI-facing limit displays consume the same table,
// so the two can never drift apart. Unknown features and unknown plan types
// always resolve to "not available".
package plans
