package main

import "github.com/ValentinKolb/jsondb/cmd"

func main() {
	cmd.Execute()
}
