package main

import (
	"log"

	"hotrepos/service"
)

func main() {
	ser, err := service.NewService()
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}

	runErr := ser.Start()
	if err := ser.Close(); err != nil {
		log.Printf("Error during service shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Search failed: %v", runErr)
	}
}
