package tui

import "github.com/cigrirepo/Floww/internal/domain"

type workspaceRefreshedMsg struct {
	cwd   string
	found bool
	root  string
	err   error
}

type initWorkspaceDoneMsg struct {
	root string
	err  error
}

type pipelinesLoadedMsg struct {
	root string
	refs []domain.PipelineRef
	err  error
}

type envsLoadedMsg struct {
	root string
	refs []domain.EnvironmentRef
	err  error
}

type pipelinePreviewMsg struct {
	path    string
	preview string
	err     error
}

type runnerDoneMsg struct {
	run domain.RunResult
	id  string
	err error
}
