package main

import (
	"context"
	"errors"

	"enginectl/pkg/config"
	"enginectl/pkg/engine"
	"enginectl/pkg/vertex"
)

// Backend is the remote side of one invocation.
type Backend struct {
	Platform engine.Platform
	Stager   engine.Stager // nil unless staging was requested
	closers  []func() error
}

// Close releases every client the backend opened.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// BackendFactory builds a Backend for s. Staging clients are only opened when staging is true.
type BackendFactory func(ctx context.Context, s *config.Settings, staging bool) (*Backend, error)

func vertexBackend(ctx context.Context, s *config.Settings, staging bool) (*Backend, error) {
	p, err := vertex.New(ctx, s.ProjectID, s.Location)
	if err != nil {
		return nil, err
	}
	b := &Backend{Platform: p, closers: []func() error{p.Close}}

	if staging {
		up, err := vertex.NewGCSUploader(ctx, s.ProjectID, s.Location, s.BucketName())
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Stager = vertex.NewStager(up)
		b.closers = append(b.closers, up.Close)
	}
	return b, nil
}
