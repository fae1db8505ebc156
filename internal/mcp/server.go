package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"fablemesh/internal/feed"
	"fablemesh/internal/store"
)

type Server struct {
	db     store.Store
	reader *feed.Reader
	mcp    *sdk.Server
}

func NewServer(db store.Store, reader *feed.Reader, version string) *Server {
	s := &Server{
		db:     db,
		reader: reader,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "fablemesh",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
