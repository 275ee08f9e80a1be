// Package config holds the CLI configuration types.
package config

// Role represents the user's chosen session role (host or client).
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// DefaultPort is the port used when none is given.
const DefaultPort = 54321

// Config stores all parameters gathered from flags or the interactive
// CLI prompts.
type Config struct {
	Role      Role
	Port      int    // Host: port to listen on. Client: port to dial.
	HostAddr  string // Client: IP address of the host.
	ListenAll bool   // Host: bind all interfaces instead of loopback.
	Debug     bool
}
