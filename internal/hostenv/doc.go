// SPDX-License-Identifier: MPL-2.0

// Package hostenv is the host context handed to the lifecycle orchestrator
// and the update coordinator: the component registries, the managed root
// directory, the factory that instantiates add-on components and the
// dispatcher that runs mutations on the owner goroutine.
//
// A Host is built once at startup with New and torn down with Close.
package hostenv
