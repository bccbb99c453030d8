package main

import (
	"bufio"
	"io"
	"strings"
)

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

// forwardLines passes every non-empty line of r, without its line ending, to
// enqueue until r is exhausted.
func forwardLines(r io.Reader, enqueue func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		enqueue(line)
	}

	return scanner.Err()
}
