// Command agentchat is a terminal client for a streaming chat backend.
package main

import (
	"github.com/joho/godotenv"

	"github.com/diogo/agentchat/internal/commands"
)

func main() {
	// A .env file is optional
	_ = godotenv.Load()

	commands.Execute()
}
