//go:build ignore

// Command crash writes a large batch of lines to the path given as its
// second argument, to be killed mid-write (externally, by a test driver)
// so CrashSafeWriteFileLines' recovery path can be exercised against a
// real process crash rather than a simulated one.
package main

import (
	"fmt"
	"os"

	"github.com/Techpire/db/internal/adapter/storage"
)

func main() {
	const lineCount = 50000
	tag := os.Args[1]
	target := os.Args[2]

	lines := make([][]byte, lineCount)
	for n := range lines {
		lines[n] = fmt.Appendf(make([]byte, 0, 13), "somedata_%s", tag)
	}

	strg := storage.NewStorage()
	_ = strg.CrashSafeWriteFileLines(target, lines, 0666, 0666)
}
