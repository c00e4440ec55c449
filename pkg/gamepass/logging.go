package gamepass

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing gamepass operation.
type OperationLog struct {
	Operation string
	Caller    AccountID
	Account   AccountID
	Games     GameCount
	Tokens    TokenAmount
	SeedID    SeedID
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithMintGateway wires the external minting service used at session end.
func WithMintGateway(gateway MintGateway) ServiceOption {
	return func(service *Service) {
		service.minter = gateway
	}
}

// WithStartPolicy selects the behavior when a session is requested while
// another is still active.
func WithStartPolicy(policy StartPolicy) ServiceOption {
	return func(service *Service) {
		service.policy = policy
	}
}
