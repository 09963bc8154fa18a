package main

// Flag structs decouple cobra from the command logic for testing.

// GlobalFlags holds persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

type ValidateFlags struct {
	EnvFile string
}

type RunFlags struct {
	Once          bool
	HeartbeatOnly bool
	Agent         string
	EnvFile       string
}

type RotateFlags struct {
	Files []string
}

type PackageFlags struct {
	Source  string
	Output  string
	Variant string
}

type VerifyFlags struct {
	Artifact string
	Variant  string
}

type HistoryFlags struct {
	Limit int
	JSON  bool
}
