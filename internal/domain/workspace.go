package domain

// WorkspaceSpec identifies a workspace location for initialization.
type WorkspaceSpec struct {
	Root string
}
