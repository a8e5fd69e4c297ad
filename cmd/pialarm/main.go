// Command pialarm runs the premises alarm controller daemon.
package main

import "github.com/carlosefr/pialarm/cmd/pialarm/cmd"

func main() {
	cmd.Execute()
}
