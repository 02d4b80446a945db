// Package invert computes the numerical inverse of a displacement field.
//
// Given a forward field u, the inverter looks for v such that composing the
// two approximates the identity. Starting from v = 0 it repeats:
//
//  1. compose: c(x) = v(x) + u(x + v(x))
//  2. residual pass: per cell, the norm of c(x) with each component divided
//     by the axis spacing; the global mean and max of those norms
//  3. damped update: v(x) += epsilon * clamp(-c(x)), where the clamp limits
//     each correction to epsilon times the global max norm
//
// epsilon is 0.75 on the first iteration and 0.5 afterwards. The loop stops
// when the iteration budget is spent or when either the max or the mean
// norm falls to its tolerance. With the boundary condition enabled the
// first and last index on every axis is held at zero displacement.
//
// The residual and update passes each run over disjoint partitions of the
// grid with a barrier between them. The mean is reduced per partition and
// merged in partition order, so a run is bit-reproducible for a fixed
// partition count but the last bits of the mean may change when the count
// changes.
package invert
