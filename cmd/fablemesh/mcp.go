package main

import (
	"context"

	"github.com/spf13/cobra"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"fablemesh/internal/config"
	"fablemesh/internal/feed"
	"fablemesh/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server over stdio",
		RunE:  runMCP,
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	reader := feed.NewReader(db, cfg.Feed.DefaultPageSize, cfg.Feed.MaxPageSize)
	server := mcp.NewServer(db, reader, version)
	return server.Run(ctx, &sdk.StdioTransport{})
}
