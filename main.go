// Command og-worker enriches content records with Open Graph images.
package main

import "github.com/JakeFAU/og-worker/cmd"

func main() {
	cmd.Execute()
}
