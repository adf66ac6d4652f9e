// Package main implements the taskwell command line: the worker daemon,
// queue migrations, one-off enqueueing, and queue status inspection.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
