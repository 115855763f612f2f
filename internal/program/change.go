package program

// ChangeKind names the kind of edit a Change describes.
type ChangeKind string

const (
	ChangeProgramUpdated  ChangeKind = "program_updated"
	ChangeNodeAdded       ChangeKind = "node_added"
	ChangeNodeRemoved     ChangeKind = "node_removed"
	ChangeNodeUpdated     ChangeKind = "node_updated"
	ChangeLinked          ChangeKind = "linked"
	ChangeUnlinked        ChangeKind = "unlinked"
	ChangeGraphAdded      ChangeKind = "graph_added"
	ChangeGraphRemoved    ChangeKind = "graph_removed"
	ChangeFunctionAdded   ChangeKind = "function_added"
	ChangeFunctionRemoved ChangeKind = "function_removed"
	ChangeVariableAdded   ChangeKind = "variable_added"
	ChangeVariableUpdated ChangeKind = "variable_updated"
	ChangeVariableRemoved ChangeKind = "variable_removed"
	ChangeSignalAdded     ChangeKind = "signal_added"
	ChangeSignalUpdated   ChangeKind = "signal_updated"
	ChangeSignalRemoved   ChangeKind = "signal_removed"
)

// Change describes one committed edit. Only the fields relevant to Kind are
// set.
type Change struct {
	Kind       ChangeKind
	Version    uint64
	NodeID     int
	Name       string
	Connection Connection
}

type subscriber struct {
	id int
	fn func(Change)
}
