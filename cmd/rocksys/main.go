package main

import "github.com/goplus/rocksys/cmd/rocksys/internal"

func main() {
	internal.Execute()
}
