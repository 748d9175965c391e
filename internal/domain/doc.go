// Package domain contains the entities the bankswap simulator records about
// a device.
//
// # Entities
//
//   - [Report]: the outcome of one simulated reset (boot decision, hand-off
//     address, failure), persisted so the CLI can show it between runs
//
// # Design Principles
//
// Domain entities are:
//   - Free of infrastructure dependencies
//   - Plain data that serializes to JSON unchanged
//   - Testable without mocks or external systems
package domain
