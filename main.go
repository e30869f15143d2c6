// Command site-signals crawls a website and reports its SEO, technical,
// security and business signals, either once from the command line or as an
// HTTP service.
package main

import "github.com/JakeFAU/site-signals-crawler/cmd"

func main() {
	cmd.Execute()
}
