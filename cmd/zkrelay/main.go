package main

import "github.com/vietddude/zkrelay/internal/cli"

func main() {
	cli.Execute()
}
