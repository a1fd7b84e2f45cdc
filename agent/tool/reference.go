package tool

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

const ReferenceLookupName = "reference-lookup"

//go:embed reference/*.txt
var referenceFS embed.FS

var referenceTopics = map[string]string{
	"troubleshooting":  "reference/troubleshooting.txt",
	"integration-tips": "reference/integration-tips.txt",
	"source-code":      "reference/source-code.txt",
}

// ReferenceLookup serves the static product documentation bundled with the
// binary.
type ReferenceLookup struct{}

func NewReferenceLookup() *ReferenceLookup { return &ReferenceLookup{} }

func ReferenceTopics() []string {
	topics := make([]string, 0, len(referenceTopics))
	for t := range referenceTopics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (r *ReferenceLookup) Definition() Definition {
	return Definition{
		Name: ReferenceLookupName,
		Description: "Returns NebulaSync documentation. Use troubleshooting when the user has a problem, " +
			"integration-tips for general advice and source-code for implementation details.",
		Params: []Param{
			{Name: "topic", Type: schema.String, Desc: "One of: " + strings.Join(ReferenceTopics(), ", ") + ".", Required: true},
		},
	}
}

func (r *ReferenceLookup) Execute(_ context.Context, args Args) contractx.ToolResult {
	topic := normalizeTopic(args.String("topic"))
	path, ok := referenceTopics[topic]
	if !ok {
		return failure(contractx.CodeNotCovered,
			fmt.Sprintf("Topic %q is not covered by the documentation. Available topics: %s. Ask the user to clarify.",
				args.String("topic"), strings.Join(ReferenceTopics(), ", ")),
			map[string]any{"topic": topic})
	}

	content, err := referenceFS.ReadFile(path)
	if err != nil {
		return errorResult(contractx.CodeExecutionError, fmt.Sprintf("read reference %s: %v", topic, err))
	}
	return success("Reference documentation for "+topic+".", map[string]any{
		"topic":   topic,
		"content": string(content),
	})
}

func normalizeTopic(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(t)
}
