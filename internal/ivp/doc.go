// Package ivp provides the core types for initial value problem
// integration.
//
// The package defines the contracts shared by every solver component:
//
//   - [System]: the right-hand side y' = f(t, y)
//   - [Jacobian]: optional analytic Jacobian capability
//   - [Tolerances]: relative/absolute tolerances and error weights
//   - [Options]: step, order and retry limits for the adaptive loop
//   - [Stats]: accepted/rejected step and evaluation counters
//
// # Error taxonomy
//
// Recoverable conditions (corrector non-convergence, error-test
// failure, a callback returning [ErrRecoverable]) are handled inside
// the integrator's retry loop. Only fatal conditions cross the
// boundary, wrapped in a [StepError] that carries the last attempted
// t, h, order and failure counts.
package ivp
