// Package goextensions provides runtime loading of binary extension modules
// for long-running server applications. It watches a single extension
// directory and keeps two module populations in sync with its contents
// without restarting the host process:
//
//   - Host extensions: native binaries loaded in-process through the platform
//     binary loader, initialized against a host context, and optionally
//     attached to the host UI.
//   - Relay extensions: binaries cataloged as opaque payloads (plus an
//     optional init sidecar) for delivery to a separate execution
//     environment. They are never executed in-process.
//
// Key Features:
//   - Debounced directory watching: bursts of filesystem events collapse
//     into a single reconciliation pass
//   - Per-attempt load isolation with scoped dependency resolution
//     (embedded container resources, then a side directory fallback)
//   - Remove-before-add reconciliation so a stale instance never coexists
//     with its replacement
//   - Deterministic duplicate handling: first file name in ascending order
//     wins, the rest are dropped and reported
//   - Structured, coded errors and pluggable logging
//   - No per-file failure is ever fatal to the surrounding pass
//
// Basic Usage:
//
//	opts := goextensions.DefaultHostOptions("/var/lib/myserver/extensions")
//	host, err := goextensions.NewExtensionHost(opts, goextensions.HostDependencies{
//		Logger:      myLogger,
//		HostContext: hostCtx,
//		UIRegistry:  uiRegistry,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	host.OnChange(func() {
//		// Snapshots are point-in-time; re-read on every notification.
//		instances := host.HostInstances()
//		descriptors := host.RelayDescriptors()
//		_ = instances
//		_ = descriptors
//	})
//
//	if err := host.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer host.Stop(context.Background())
//
// Loaded modules run fully trusted; this package performs no sandboxing or
// privilege separation. Transporting relay payloads to their execution
// environment is left to the embedding application.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package goextensions
