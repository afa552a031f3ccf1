// Package calculator turns a settlement's expenses into net balances and the
// shortest list of transfers that clears them. Everything here is pure and
// safe for concurrent use; money is integer cents throughout.
package calculator
