// Package allocation distributes a fixed budget of discrete sales actions
// across customers ranked by their priority score.
//
// The allocator walks customers in descending score order and grants each one
// ceil(score/divisor) actions, clamped to the per-customer cap and to what is
// left of the budget. Customers not reached before the budget runs out get
// zero. The procedure is a pure function of its inputs.
package allocation
