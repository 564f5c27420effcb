// Package runner turns a language-aware compile/run request into a
// spec.RunSpec and hands it to a sandbox engine, then maps the raw
// execution result onto a verdict.
package runner

import (
	"context"

	"fuzoj/internal/judge/sandbox/profile"
	"fuzoj/internal/judge/sandbox/result"
	"fuzoj/internal/judge/sandbox/spec"
)

// IOConfig describes how the submitted program reads input and writes
// output: "stdio" (default) redirects standard streams, "fileio" expects
// the program to open named files inside the sandbox workdir.
type IOConfig struct {
	Mode           string
	InputFileName  string
	OutputFileName string
}

// CheckerSpec describes a custom checker binary and its arguments.
type CheckerSpec struct {
	BinaryPath string
	Args       []string
	Env        []string
	Limits     spec.ResourceLimit
}

// CompileRequest describes one compilation task.
type CompileRequest struct {
	SubmissionID      string
	Language          profile.LanguageSpec
	Profile           profile.TaskProfile
	WorkDir           string
	SourcePath        string
	ExtraCompileFlags []string
	Limits            spec.ResourceLimit
}

// RunRequest describes one execution task, optionally including a custom
// checker run immediately after the program terminates successfully.
type RunRequest struct {
	SubmissionID   string
	TestID         string
	Language       profile.LanguageSpec
	Profile        profile.TaskProfile
	WorkDir        string
	IOConfig       IOConfig
	InputPath      string
	AnswerPath     string
	Limits         spec.ResourceLimit
	Checker        *CheckerSpec
	CheckerProfile *profile.TaskProfile
	Score          int
	SubtaskID      string
}

// Runner orchestrates compile and run workflows against a sandbox engine.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error)
}
