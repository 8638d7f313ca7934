// Package logg holds the zap field keys shared by every layer.
package logg

const (
	Layer     = "layer"
	Operation = "operation"
	URL       = "url"
	Selector  = "selector"
	Role      = "role"
	Fn        = "fn"
	BatchID   = "batch_id"
	Recipient = "recipient"
	Strategy  = "strategy"
	Technique = "technique"
	CommandID = "command_id"
	Command   = "command"
	TabID     = "tab_id"
)
