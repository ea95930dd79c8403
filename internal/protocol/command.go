package protocol

// Command is one parsed line of the worker protocol.
type Command interface {
	command()
}

// ProgressCommand reports how far along the worker's job is.
type ProgressCommand struct {
	Progress Progress
}

// AlertCommand carries a message the operator should see.
type AlertCommand struct {
	Message string
}

// DoneCommand marks the worker's job as successfully finished.
type DoneCommand struct{}

// KeepaliveCommand refreshes the session's activity deadline and changes
// nothing else.
type KeepaliveCommand struct{}

func (ProgressCommand) command()  {}
func (AlertCommand) command()     {}
func (DoneCommand) command()      {}
func (KeepaliveCommand) command() {}
