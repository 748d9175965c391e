// Package ports defines the interfaces that connect the device simulator to
// its infrastructure adapters.
//
// # Port Interfaces
//
//   - [ReportRepository]: persists and loads the last boot report
//
// # Usage
//
// The simulator (pkg/device) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (the file system).
package ports
