// Command places-crawler scrapes map place listings into a deduplicated table.
package main

import "github.com/JakeFAU/places-crawler/cmd"

func main() {
	cmd.Execute()
}
