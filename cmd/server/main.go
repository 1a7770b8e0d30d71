package main

import (
	"log"

	approuters "github.com/anik12136/uiu-pathshala-server/internal/app_routers"
	"github.com/anik12136/uiu-pathshala-server/internal/configuration"
)

func main() {
	container, err := configuration.BuildContainer()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	approuters.StartServer(container)
}
