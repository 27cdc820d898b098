// Package store provides storage for the latest status of each monitored key.
//
// This package is internal to betawatch and manages the in-memory snapshot
// of key statuses served by the REST API.
//
// The main components are:
//
//   - [Store]: Interface defining storage operations
//   - [MemoryStore]: In-memory implementation of Store
//   - [KeyStatus]: Storage representation of a key's latest check
//
// Users of the betawatch library should not need to interact with this
// package directly. Storage is managed internally by the watcher.
package store
