package main

import "github.com/PatrickKish1/x402-manager-backend/server"

func main() {
	server.Main()
}
