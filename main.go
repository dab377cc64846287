// File: main.go
package main

import "github.com/xkilldash9x/tokensmith/cmd"

func main() {
	cmd.Execute()
}
