package daemon

import "github.com/Plexify-AI/plexifybid-sub001/internal/config"

// StartOptions configures the daemon: where it lives, what it listens on and
// which store it serves.
type StartOptions struct {
	Home       string
	Port       int    // HTTP port
	GRPCAddr   string // session service listen address; empty disables gRPC
	Dev        bool
	PprofAddr  string
	APIKey     string // required on HTTP requests when set
	Operator   string // default operator for requests that name none
	DB         config.DBConfig
	Notify     config.NotifyConfig
	EnableOtel bool // Prometheus exporter plus HTTP and session instrumentation
	Version    string
}

// StatusInfo is the result of Status.
type StatusInfo struct {
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	Addr     string `json:"addr,omitempty"`
	GRPCAddr string `json:"grpc_addr,omitempty"`
}
