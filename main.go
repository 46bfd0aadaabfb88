// Command mrview maintains and queries incremental map/reduce views over
// a CouchDB-compatible document database.
package main

import (
	"log"
	"os"

	"github.com/evalgo-labs/mrview/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
