package vertex

import (
	"fmt"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/protobuf/types/known/structpb"

	"enginectl/pkg/engine"
)

func toDeployment(re *aiplatformpb.ReasoningEngine) *engine.Deployment {
	d := &engine.Deployment{
		Name:        re.GetName(),
		DisplayName: re.GetDisplayName(),
		Description: re.GetDescription(),
	}
	if ts := re.GetCreateTime(); ts != nil {
		d.CreateTime = ts.AsTime()
	}
	if ts := re.GetUpdateTime(); ts != nil {
		d.UpdateTime = ts.AsTime()
	}
	return d
}

func toStruct(input map[string]any) (*structpb.Struct, error) {
	if input == nil {
		input = map[string]any{}
	}
	s, err := structpb.NewStruct(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query input: %w", err)
	}
	return s, nil
}

func createRequest(parent string, spec *engine.DeploymentSpec) (*aiplatformpb.CreateReasoningEngineRequest, error) {
	methods, err := classMethods()
	if err != nil {
		return nil, err
	}

	var env []*aiplatformpb.EnvVar
	for _, name := range sortedKeys(spec.Env) {
		env = append(env, &aiplatformpb.EnvVar{Name: name, Value: spec.Env[name]})
	}

	re := &aiplatformpb.ReasoningEngine{
		DisplayName: spec.DisplayName,
		Description: spec.Description,
		Spec: &aiplatformpb.ReasoningEngineSpec{
			PackageSpec: &aiplatformpb.ReasoningEngineSpec_PackageSpec{
				PickleObjectGcsUri:    spec.Package.PickleURI,
				DependencyFilesGcsUri: spec.Package.DependenciesURI,
				RequirementsGcsUri:    spec.Package.RequirementsURI,
				PythonVersion:         spec.Package.PythonVersion,
			},
			ClassMethods: methods,
		},
	}
	if len(env) > 0 {
		re.Spec.DeploymentSpec = &aiplatformpb.ReasoningEngineSpec_DeploymentSpec{Env: env}
	}

	return &aiplatformpb.CreateReasoningEngineRequest{
		Parent:          parent,
		ReasoningEngine: re,
	}, nil
}
