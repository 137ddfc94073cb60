package main

import "leaveflow/internal/app/server"

func main() {
	server.Run()
}
