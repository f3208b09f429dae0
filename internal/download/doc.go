// SPDX-License-Identifier: MPL-2.0

// Package download runs a fixed pool of workers that fetch archives to disk
// and verify them against their declared size and hash.
//
// A scheduled transfer is owned by the Manager until it finishes. Finished
// tasks are handed out exactly once by TakeFinished; a task that failed
// validation keeps its file on disk and reports Validated == false.
package download
