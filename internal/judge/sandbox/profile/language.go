package profile

// LanguageSpec defines how to compile and run a submission written in a
// given language, including the command templates and the limit
// multipliers applied to the problem's base time/memory limits.
type LanguageSpec struct {
	ID               string
	Name             string
	Version          string
	SourceFile       string
	BinaryFile       string
	CompileEnabled   bool
	CompileCmdTpl    string
	RunCmdTpl        string
	Env              []string
	TimeMultiplier   float64
	MemoryMultiplier float64
}
