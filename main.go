// The main package for the forumrag executable.
package main

import (
	"github.com/JakeFAU/forumrag/cmd"
)

func main() {
	cmd.Execute()
}
