// Package models defines the core domain models for Divvy.
//
// # Models
//
//   - Group: a shared household with a member list
//   - Expense: a cost paid by one member, divided into Splits
//   - Split: one member's share of an Expense
//   - Settlement: a recorded payment between two members
//   - PaymentMethod: how a member prefers to be paid back
//   - QueueEntry: one pending offline mutation awaiting sync
//   - User: a registered member account
//
// # Design Principles
//
//  1. **Wire-stable JSON**: every model round-trips through the local store
//     and the remote API unchanged, so each field carries a json tag.
//  2. **Fixed-point money**: amounts are decimal.Decimal, never float64.
//  3. **Avoid circular references**: models reference each other by ID
//     strings instead of pointers.
//  4. **Dual id space**: an ID is either server-assigned (UUID format) or a
//     client-generated temp id ("tmp-..."); see the identity package.
package models
