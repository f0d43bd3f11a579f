package main

// main.go: entrypoint, starts the MCP server over stdio.

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanjit/coq-serapy/internal/driver"
)

func main() {
	// All args after the binary name are passed through as the sertop argv.
	cfg := driver.DefaultConfig()
	if len(os.Args) > 1 {
		cfg.CoqCommand = os.Args[1:]
	}
	if wd, err := os.Getwd(); err == nil {
		cfg.ProjectPath = wd
	}

	s, err := driver.NewSession(cfg)
	if err != nil {
		log.Fatalf("starting prover session: %v", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "coq-serapy",
		Version: "0.1.0",
	}, nil)

	registerTools(server, s)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("server error: %v", err)
	}

	if err := s.Kill(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
