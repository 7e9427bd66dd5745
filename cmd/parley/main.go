// Parley: terminal client for a conversational-agent gateway. Local
// state in SQLite, transport over NATS (or in-process for tests).
package main

import "github.com/parley-dev/parley/internal/parleycli"

func main() {
	parleycli.Main()
}
