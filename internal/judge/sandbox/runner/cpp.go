package runner

import (
	"context"

	"fuzoj/internal/judge/sandbox/result"
)

// CppCompileRequest is CompileRequest specialized for C++ submissions; it
// carries no extra fields today but keeps call sites self-documenting and
// gives future per-language compile options somewhere to land.
type CppCompileRequest struct {
	CompileRequest
}

// CppRunRequest is RunRequest specialized for C++ submissions.
type CppRunRequest struct {
	RunRequest
}

// CompileCpp compiles a C++ submission using the base compile workflow.
func (r *DefaultRunner) CompileCpp(ctx context.Context, req CppCompileRequest) (result.CompileResult, error) {
	return r.Compile(ctx, req.CompileRequest)
}

// RunCpp runs a C++ submission using the base run workflow.
func (r *DefaultRunner) RunCpp(ctx context.Context, req CppRunRequest) (result.TestcaseResult, error) {
	return r.Run(ctx, req.RunRequest)
}
