package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/haasonsaas/concierge/internal/agent"
)

// maxBridgedNameLen keeps bridged names within what providers accept.
const maxBridgedNameLen = 64

// BridgedTool wraps one remote MCP tool as an agent tool. Its calls are
// recorded as dynamic parts and never go through approval.
type BridgedTool struct {
	manager  *Manager
	serverID string
	tool     *Tool
	name     string
}

func (b *BridgedTool) Name() string {
	return b.name
}

func (b *BridgedTool) Description() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", b.serverID, b.tool.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.serverID, b.tool.Name, desc)
}

func (b *BridgedTool) Schema() json.RawMessage {
	if len(b.tool.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b.tool.InputSchema
}

func (b *BridgedTool) Remote() bool {
	return true
}

// Execute forwards the call to the remote server and flattens the result
// into the text form the conversation stores.
func (b *BridgedTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	result, err := b.manager.CallTool(ctx, b.serverID, b.tool.Name, params)
	if err != nil {
		return nil, err
	}
	content, isError := flattenCallResult(result)
	return &agent.ToolResult{Content: content, IsError: isError}, nil
}

// BridgedTools returns every tool of every connected server as an agent
// tool, named mcp_<server>_<tool>, in deterministic order.
func (m *Manager) BridgedTools() []agent.Tool {
	all := m.AllTools()
	if len(all) == 0 {
		return nil
	}

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	used := make(map[string]struct{})
	var bridged []agent.Tool
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		for _, tool := range tools {
			bridged = append(bridged, &BridgedTool{
				manager:  m,
				serverID: serverID,
				tool:     tool,
				name:     bridgedName(serverID, tool.Name, used),
			})
		}
	}
	return bridged
}

// bridgedName builds mcp_<server>_<tool>, sanitized, length-capped, and
// deduplicated with a short hash when two tools collide.
func bridgedName(serverID, toolName string, used map[string]struct{}) string {
	name := "mcp_" + sanitizeNamePart(serverID) + "_" + sanitizeNamePart(toolName)
	if len(name) > maxBridgedNameLen {
		name = hashSuffix(name, serverID, toolName)
	}
	if _, exists := used[name]; exists {
		name = hashSuffix(name, serverID, toolName)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeNamePart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		} else if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func hashSuffix(base, serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]
	if len(base)+len(suffix) > maxBridgedNameLen {
		base = base[:maxBridgedNameLen-len(suffix)]
	}
	return base + suffix
}

// flattenCallResult joins text content items with newlines; anything
// non-text falls back to the JSON encoding of the whole result.
func flattenCallResult(result *CallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			payload, err := json.Marshal(result)
			if err != nil {
				return "", result.IsError
			}
			return string(payload), result.IsError
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}
	return combined.String(), result.IsError
}
