// Package entities provides the core types of the native ABI: addresses,
// envelope kinds and layouts, the Result sum type, and library manifests.
// Nothing here touches memory; reading and writing blocks is the job of
// ports.Memory implementations.
package entities
