package ir

// Version constants for the value model and engine.
const (
	// EngineVersion is the vscript engine version reported in saved files.
	EngineVersion = "0.3.0"

	// EngineMajor, EngineMinor and EnginePatch form the host-version triple
	// written into binary headers. Informational only.
	EngineMajor = 0
	EngineMinor = 3
	EnginePatch = 0
)
