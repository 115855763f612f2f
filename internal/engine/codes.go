package engine

// Diagnostic codes reported by kind Validate hooks. Structural codes
// (E201..E219, W201..W219) belong to the builder.
const (
	CodeSignalUndefined   = "E220"
	CodeTooManySignalArgs = "E221"
	CodeSignalArgCount    = "E222"
	CodeFunctionMissing   = "E230"
	CodeFunctionArgCount  = "E231"
	CodeBuiltinMissing    = "E232"
	CodeVariableUndefined = "E240"
	CodeInvalidOperator   = "E250"
	CodeMethodMissing     = "E260"
	CodeClassUnknown      = "E261"
	CodeMethodUnknown     = "E262"
	CodeEventUnnamed      = "E270"
	CodeEventArgType      = "E271"
	CodeLoopStepZero      = "W280"
)
