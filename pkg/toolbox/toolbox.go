// Package toolbox is the single point of tool-name resolution the planner
// and engine consult: built-in Go tools registered locally, remote tools
// discovered through the server manager, and the alias table that lets
// either kind be referred to by a shorter or more familiar name.
package toolbox

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/QUSEIT/simacode-sub000/pkg/localtool"
	"github.com/QUSEIT/simacode-sub000/pkg/manager"
	"github.com/QUSEIT/simacode-sub000/pkg/protocol"
	"github.com/QUSEIT/simacode-sub000/pkg/registry"
	"github.com/QUSEIT/simacode-sub000/pkg/rpc"
)

// Descriptor is the shape the planner sees for any resolvable tool,
// whether local or remote.
type Descriptor struct {
	Qualified   string
	Description string
	InputSchema map[string]any
	Local       bool
}

// argAliases maps an argument name commonly used by callers to the name a
// tool actually expects, so planners generated against slightly different
// naming conventions still resolve.
var argAliases = map[string]string{
	"image_path":  "file_path",
	"filepath":    "path",
	"file":        "path",
	"cmd":         "command",
	"working_dir": "dir",
}

// Registry resolves tool references against local built-ins first, then
// remote servers, then a unique-alias match, falling back to a fuzzy
// suggestion when nothing matches.
type Registry struct {
	local *registry.BaseRegistry[localtool.Tool]
	mgr   *manager.Manager

	aliases map[string]string // alias -> qualified name
}

// New constructs an empty Registry wired to the given server manager.
func New(mgr *manager.Manager) *Registry {
	return &Registry{
		local:   registry.NewBaseRegistry[localtool.Tool](),
		mgr:     mgr,
		aliases: make(map[string]string),
	}
}

// RegisterLocal adds a built-in tool.
func (r *Registry) RegisterLocal(tool localtool.Tool) error {
	return r.local.Register(tool.Name(), tool)
}

// RegisterAlias records alias as another name for qualified, used when the
// bare alias does not collide with any tool's own name.
func (r *Registry) RegisterAlias(alias, qualified string) {
	r.aliases[alias] = qualified
}

// NormalizeArgs rewrites argument keys using the shared alias table,
// without overwriting a key the caller already supplied under its
// canonical name.
func NormalizeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		canonical := k
		if alias, ok := argAliases[k]; ok {
			if _, supplied := args[alias]; supplied {
				continue
			}
			canonical = alias
		}
		if _, exists := out[canonical]; !exists {
			out[canonical] = v
		}
	}
	return out
}

// Descriptors returns every resolvable tool: local built-ins first, then
// remote tools, sorted by qualified name within each group.
func (r *Registry) Descriptors() []Descriptor {
	var out []Descriptor

	for _, t := range r.local.List() {
		out = append(out, Descriptor{
			Qualified:   t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
			Local:       true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Qualified < out[j].Qualified })

	var remote []Descriptor
	for _, e := range r.mgr.Entries() {
		remote = append(remote, Descriptor{
			Qualified:   e.Qualified,
			Description: e.Description,
			InputSchema: e.InputSchema,
		})
	}
	sort.Slice(remote, func(i, j int) bool { return remote[i].Qualified < remote[j].Qualified })

	return append(out, remote...)
}

// Resolve implements the four-step resolution order: exact local name,
// exact remote "server:tool" or unique bare remote name, unique alias, and
// finally a fuzzy best-guess suggestion (returned as an error, never
// auto-applied).
func (r *Registry) Resolve(ref string) (Descriptor, error) {
	if tool, ok := r.local.Get(ref); ok {
		return Descriptor{
			Qualified:   tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
			Local:       true,
		}, nil
	}

	if entry, err := r.mgr.Resolve(ref); err == nil {
		return Descriptor{
			Qualified:   entry.Qualified,
			Description: entry.Description,
			InputSchema: entry.InputSchema,
		}, nil
	}

	if qualified, ok := r.aliases[ref]; ok {
		return r.Resolve(qualified)
	}

	suggestion := r.suggest(ref)
	if suggestion != "" {
		return Descriptor{}, fmt.Errorf("toolbox: no tool named %q; did you mean %q?", ref, suggestion)
	}
	return Descriptor{}, fmt.Errorf("toolbox: no tool named %q", ref)
}

// CallLocal invokes a built-in tool directly, bypassing the manager.
func (r *Registry) CallLocal(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	tool, ok := r.local.Get(name)
	if !ok {
		return nil, fmt.Errorf("toolbox: %q is not a local tool", name)
	}
	return tool.Call(ctx, NormalizeArgs(args))
}

// CallRemote dispatches to the server manager for a resolved remote entry.
func (r *Registry) CallRemote(ctx context.Context, qualified string, args map[string]any, timeoutSeconds int) (*protocol.CallResult, error) {
	entry, err := r.mgr.Resolve(qualified)
	if err != nil {
		return nil, err
	}
	return r.mgr.Call(ctx, entry, NormalizeArgs(args), timeoutSeconds)
}

// CallRemoteAsync dispatches a progress-aware call for a resolved remote
// entry; servers that are not progress-capable transparently downgrade to
// a single terminal event (see toolclient.Client.CallToolAsync).
func (r *Registry) CallRemoteAsync(ctx context.Context, qualified string, args map[string]any, timeoutSeconds int) (<-chan rpc.ToolEvent, error) {
	entry, err := r.mgr.Resolve(qualified)
	if err != nil {
		return nil, err
	}
	return r.mgr.CallAsync(ctx, entry, NormalizeArgs(args), timeoutSeconds)
}

// IsLocal reports whether qualified names a registered built-in tool.
func (r *Registry) IsLocal(qualified string) bool {
	_, ok := r.local.Get(qualified)
	return ok
}

// suggest returns the closest known name to ref by edit distance, or ""
// if nothing is close enough to be worth a suggestion.
func (r *Registry) suggest(ref string) string {
	const maxDistance = 3

	best := ""
	bestDist := maxDistance + 1

	consider := func(name string) {
		d := levenshtein(strings.ToLower(ref), strings.ToLower(name))
		if d < bestDist {
			bestDist = d
			best = name
		}
	}

	for _, t := range r.local.List() {
		consider(t.Name())
	}
	for _, e := range r.mgr.Entries() {
		consider(e.Name)
		consider(e.Qualified)
	}

	if bestDist > maxDistance {
		return ""
	}
	return best
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
