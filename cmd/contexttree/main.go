// Command contexttree builds and prunes a context tree from a cluster
// summaries file without the HTTP server.
package main

import "github.com/jengzang/landuse-tree/cmd/contexttree/cmd"

func main() {
	cmd.Execute()
}
