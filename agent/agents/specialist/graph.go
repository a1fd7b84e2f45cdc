package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

// compileStepGraph wires one reasoning step: the request is rendered into
// a message list and handed to the tool-bound model.
func compileStepGraph(
	ctx context.Context,
	graphName string,
	build func(context.Context, contractx.SpecialistRequest) ([]*schema.Message, error),
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[contractx.SpecialistRequest, *schema.Message], error) {
	graph := compose.NewGraph[contractx.SpecialistRequest, *schema.Message]()

	if err := graph.AddLambdaNode("build_messages", compose.InvokableLambda(build)); err != nil {
		return nil, fmt.Errorf("add specialist build node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add specialist model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "build_messages"); err != nil {
		return nil, fmt.Errorf("add specialist edge start->build: %w", err)
	}
	if err := graph.AddEdge("build_messages", "model"); err != nil {
		return nil, fmt.Errorf("add specialist edge build->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add specialist edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile specialist step graph: %w", err)
	}
	return runner, nil
}
