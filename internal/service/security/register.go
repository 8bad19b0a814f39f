package security

import (
	"google.golang.org/grpc"

	"github.com/oggyb/soulmate-hub/internal/service/access"
)

// Registrar ties the Security service into the gRPC server
type Registrar struct {
	monitor *access.Monitor
}

// NewRegistrar creates a new Registrar for the Security service
func NewRegistrar(monitor *access.Monitor) *Registrar {
	return &Registrar{monitor: monitor}
}

// Register attaches the Security service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewService(r.monitor))
}
