// Command zjj is the CLI boundary over the Session Manager, Queue, Lock
// Manager, Train Processor and Recovery Engine (spec §6). It owns exit-code
// mapping, JSONL/plain output selection, and config layering; every domain
// decision lives in internal/*.
package main

import "os"

func main() {
	err := newRootCmd().Execute()
	os.Exit(exitCodeFor(err))
}
