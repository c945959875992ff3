// Command paradis-node runs a paradis peer.
package main

import (
    "os"

    "github.com/tebeka/atexit"
)

func main() {
    code := 0
    if err := newRootCmd(&code).Execute(); err != nil {
        _, _ = os.Stderr.WriteString(err.Error() + "\n")
        code = 2
    }
    atexit.Exit(code)
}
