// Package vec provides state-vector arithmetic backends.
//
// The integration core never touches vector components directly; all
// elementary operations go through the [Ops] capability set:
//
//   - Serial: straightforward loops, always available
//   - Parallel: chunked multi-goroutine loops for large systems
//
// Backends may additionally implement [Fused] for batched linear
// combinations. The core treats the fused path as a cost hint only and
// falls back to composing required operations, so results are identical
// across backends.
//
//	ops := vec.Auto(len(y0))
//	nrm := ops.WrmsNorm(v, weights)
package vec
