package domain

// ConnectionState is the state of the chain connection manager.
type ConnectionState string

const (
	ConnStateDisconnected ConnectionState = "disconnected"
	ConnStateConnecting   ConnectionState = "connecting"
	ConnStateConnected    ConnectionState = "connected"
	ConnStateReconnecting ConnectionState = "reconnecting"
	ConnStateGivingUp     ConnectionState = "giving_up"
	ConnStateShuttingDown ConnectionState = "shutting_down"
)

// IsTerminal reports whether no further automatic transition can happen.
func (s ConnectionState) IsTerminal() bool {
	return s == ConnStateGivingUp || s == ConnStateShuttingDown
}
