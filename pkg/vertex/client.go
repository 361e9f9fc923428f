// Package vertex implements engine.Platform on Vertex AI Agent Engine
// (reasoning engines) and stages deployment artifacts in Cloud Storage.
package vertex

import (
	"context"
	"errors"
	"fmt"
	"io"

	aiplatform "cloud.google.com/go/aiplatform/apiv1beta1"
	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"enginectl/pkg/apierrors"
	"enginectl/pkg/engine"
	"enginectl/pkg/logx"
)

// Platform talks to the regional Agent Engine endpoint for one project.
type Platform struct {
	project  string
	location string
	engines  *aiplatform.ReasoningEngineClient
	exec     *aiplatform.ReasoningEngineExecutionClient
	logger   *logx.Logger
}

var _ engine.Platform = (*Platform)(nil)

// Endpoint returns the regional API endpoint for location.
func Endpoint(location string) string {
	return fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)
}

// New dials both Agent Engine services. Credentials come from Application
// Default Credentials unless opts say otherwise.
func New(ctx context.Context, project, location string, opts ...option.ClientOption) (*Platform, error) {
	opts = append([]option.ClientOption{option.WithEndpoint(Endpoint(location))}, opts...)

	engines, err := aiplatform.NewReasoningEngineClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning engine client: %w", err)
	}
	exec, err := aiplatform.NewReasoningEngineExecutionClient(ctx, opts...)
	if err != nil {
		_ = engines.Close()
		return nil, fmt.Errorf("failed to create reasoning engine execution client: %w", err)
	}

	return &Platform{
		project:  project,
		location: location,
		engines:  engines,
		exec:     exec,
		logger:   logx.NewLogger("vertex"),
	}, nil
}

// Close releases both connections.
func (p *Platform) Close() error {
	return errors.Join(p.engines.Close(), p.exec.Close())
}

func (p *Platform) CreateDeployment(ctx context.Context, spec *engine.DeploymentSpec) (*engine.Deployment, error) {
	req, err := createRequest(engine.ParentName(p.project, p.location), spec)
	if err != nil {
		return nil, err
	}

	op, err := p.engines.CreateReasoningEngine(ctx, req)
	if err != nil {
		return nil, apierrors.Classify("create_deployment", err)
	}
	p.logger.Info("create operation %s started, waiting for completion", op.Name())

	re, err := op.Wait(ctx)
	if err != nil {
		return nil, apierrors.Classify("create_deployment", err)
	}
	return toDeployment(re), nil
}

func (p *Platform) GetDeployment(ctx context.Context, name string) (*engine.Deployment, error) {
	re, err := p.engines.GetReasoningEngine(ctx, &aiplatformpb.GetReasoningEngineRequest{Name: name})
	if err != nil {
		return nil, apierrors.Classify("get_deployment", err)
	}
	return toDeployment(re), nil
}

func (p *Platform) ListDeployments(ctx context.Context) ([]*engine.Deployment, error) {
	it := p.engines.ListReasoningEngines(ctx, &aiplatformpb.ListReasoningEnginesRequest{
		Parent: engine.ParentName(p.project, p.location),
	})

	var out []*engine.Deployment
	for {
		re, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, apierrors.Classify("list_deployments", err)
		}
		out = append(out, toDeployment(re))
	}
	return out, nil
}

func (p *Platform) DeleteDeployment(ctx context.Context, name string, force bool) error {
	op, err := p.engines.DeleteReasoningEngine(ctx, &aiplatformpb.DeleteReasoningEngineRequest{
		Name:  name,
		Force: force,
	})
	if err != nil {
		return apierrors.Classify("delete_deployment", err)
	}
	if err := op.Wait(ctx); err != nil {
		return apierrors.Classify("delete_deployment", err)
	}
	return nil
}

func (p *Platform) Query(ctx context.Context, name, method string, input map[string]any) (any, error) {
	in, err := toStruct(input)
	if err != nil {
		return nil, err
	}

	resp, err := p.exec.QueryReasoningEngine(ctx, &aiplatformpb.QueryReasoningEngineRequest{
		Name:        name,
		Input:       in,
		ClassMethod: method,
	})
	if err != nil {
		return nil, apierrors.Classify("query:"+method, err)
	}
	return resp.GetOutput().AsInterface(), nil
}

func (p *Platform) StreamQuery(ctx context.Context, name, method string, input map[string]any, fn engine.EventHandler) error {
	in, err := toStruct(input)
	if err != nil {
		return err
	}

	stream, err := p.exec.StreamQueryReasoningEngine(ctx, &aiplatformpb.StreamQueryReasoningEngineRequest{
		Name:        name,
		Input:       in,
		ClassMethod: method,
	})
	if err != nil {
		return apierrors.Classify("query:"+method, err)
	}

	lines := newLineSplitter(fn)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return apierrors.Classify("query:"+method, err)
		}
		logx.Debug(ctx, "vertex", "stream chunk: %d bytes (%s)", len(chunk.GetData()), chunk.GetContentType())
		if err := lines.Write(chunk.GetData()); err != nil {
			return err
		}
	}
	return lines.Flush()
}
