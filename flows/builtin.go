// Package flows holds the CRM's built-in flows and their typed entry points.
package flows

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/tluyben/crmflow/catalog"
	"github.com/tluyben/crmflow/flow"
)

// Built-in flow names.
const (
	SummarizeCallFlow              = "summarize-call"
	EnhanceScriptFlow              = "enhance-script"
	ComposeMultiChannelMessageFlow = "compose-multi-channel-message"
)

//go:embed defs/*.yml
var defs embed.FS

var builtin = mustLoadBuiltin()

func mustLoadBuiltin() map[string]*flow.Spec {
	entries, err := fs.ReadDir(defs, "defs")
	if err != nil {
		panic(err)
	}
	specs := make(map[string]*flow.Spec, len(entries))
	for _, entry := range entries {
		data, err := defs.ReadFile(path.Join("defs", entry.Name()))
		if err != nil {
			panic(err)
		}
		parsed, err := catalog.Decode(data, false)
		if err != nil {
			panic(fmt.Errorf("built-in flow %s: %w", entry.Name(), err))
		}
		for _, def := range parsed {
			specs[def.Name] = flow.MustSpec(def)
		}
	}
	return specs
}

// Builtin returns the built-in specs sorted by name.
func Builtin() []*flow.Spec {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*flow.Spec, 0, len(names))
	for _, name := range names {
		out = append(out, builtin[name])
	}
	return out
}

// Spec returns a built-in spec by name.
func Spec(name string) (*flow.Spec, bool) {
	s, ok := builtin[name]
	return s, ok
}

// Catalog returns a new catalog seeded with the built-in flows.
func Catalog() (*catalog.Catalog, error) {
	return catalog.New(Builtin()...)
}
