// Package main is the entry point of interview-service (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/peercode/interview-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
