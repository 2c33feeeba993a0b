package main

import "civicreport-be/cmd"

func main() {
	cmd.Execute()
}
