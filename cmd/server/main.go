// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the Moodle AI assistant service.
//
// The assistant mirrors a Moodle database into a local store, assembles
// query context from it, and routes administrator queries to AI providers
// over their APIs or through browser automation.
//
// Usage:
//
//	./server
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 3000)
//	CONFIG_PATH - optional YAML config file
//	MEMORY_DB_PATH - SQLite database path (default: ./data/memory.db)
//	REDIS_URL - optional Redis URL for the conversation cache
//	MOODLE_DB_HOST/PORT/NAME/USER/PASSWORD - default Moodle database
//	ANTHROPIC_API_KEY / OPENAI_API_KEY / GEMINI_API_KEY - provider keys
package main

import (
	"log"

	"github.com/MFTechStaffs/moodle-ai-assistant/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
