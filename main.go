package main

import "github.com/bqualhato/cnpjdata/cmd"

func main() {
	cmd.Execute()
}
