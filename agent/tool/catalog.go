package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/support-router/agent/contract"
)

// Param is one declared argument of a tool. Params keep declaration order.
type Param struct {
	Name     string
	Type     schema.DataType
	Desc     string
	Required bool
	// Enum restricts a string param to the listed values.
	Enum []string
	// Sensitive values are masked before a request is persisted.
	Sensitive bool
}

type Definition struct {
	Name        string
	Description string
	Params      []Param
}

// Tool is a named capability with a declared argument schema. Execute is
// only called with arguments that already passed validation.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, args Args) contractx.ToolResult
}

type Args map[string]any

// String returns the named argument as a string, or "" when absent.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

func (d Definition) Info() *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(d.Params))
	for _, p := range d.Params {
		params[p.Name] = &schema.ParameterInfo{
			Type:     p.Type,
			Desc:     p.Desc,
			Required: p.Required,
			Enum:     p.Enum,
		}
	}
	return &schema.ToolInfo{
		Name:        d.Name,
		Desc:        d.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func (d Definition) param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func success(message string, data map[string]any) contractx.ToolResult {
	return contractx.ToolResult{Status: contractx.ToolSuccess, Message: message, Data: data}
}

func failure(code contractx.ToolErrorCode, message string, data map[string]any) contractx.ToolResult {
	return contractx.ToolResult{Status: contractx.ToolFailure, ErrorCode: code, Message: message, Data: data}
}

func errorResult(code contractx.ToolErrorCode, message string) contractx.ToolResult {
	return contractx.ToolResult{Status: contractx.ToolError, ErrorCode: code, Message: message}
}

func unavailable(tool string, caller contractx.AgentName) contractx.ToolResult {
	return errorResult(contractx.CodeUnauthorizedTool,
		fmt.Sprintf("tool=%s is unavailable for agent=%s", tool, caller))
}

// MaskSecret keeps at most the last four characters of a secret.
func MaskSecret(secret string) string {
	r := []rune(secret)
	if len(r) < minTokenLength {
		return "****"
	}
	return "****" + string(r[len(r)-minTokenLength:])
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
