package container

import (
	"fmt"
	"os"
	"path/filepath"
)

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

func buildMounts(opts NodeOpts) []string {
	cwd, _ := os.Getwd()
	var binds []string

	// Per-node workspace
	workPath := filepath.Join(cwd, "data", "workspaces", opts.AgentID)
	os.MkdirAll(workPath, 0o755)
	binds = append(binds, fmt.Sprintf("%s:%s", workPath, "/workspace"))

	// Shared knowledge base (read-only)
	knowledgePath := filepath.Join(cwd, "data", "knowledge")
	if _, err := os.Stat(knowledgePath); err == nil {
		binds = append(binds, fmt.Sprintf("%s:%s:ro", knowledgePath, "/workspace/knowledge"))
	}

	for _, m := range opts.Mounts {
		bind := fmt.Sprintf("%s:%s", m.Source, m.Target)
		if m.ReadOnly {
			bind += ":ro"
		}
		binds = append(binds, bind)
	}

	return binds
}
