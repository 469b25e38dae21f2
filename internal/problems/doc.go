// Package problems collects the benchmark initial value problems the
// solvers are exercised against, from trivially smooth (exponential
// decay) to classically stiff (Robertson kinetics).
package problems
