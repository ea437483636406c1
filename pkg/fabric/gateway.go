package fabric

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/ExarKun28/sme-cashflow-blockchain/internal/config"
)

// Connection is one gateway session bound to the configured channel and
// chaincode.
type Connection struct {
	Gateway  *client.Gateway
	GrpcConn *grpc.ClientConn
	Network  *client.Network
	Contract *client.Contract
}

func Connect(cfg config.FabricConfig) (*Connection, error) {
	cert, err := loadCertificate(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate from %s: %w", cfg.CertPath, err)
	}

	id, err := identity.NewX509Identity(cfg.MspID, cert)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	privateKey, err := loadPrivateKey(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key from %s: %w", cfg.KeyPath, err)
	}

	sign, err := identity.NewPrivateKeySign(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	grpcConn, err := newGrpcConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	gateway, err := client.Connect(
		id,
		client.WithSign(sign),
		client.WithClientConnection(grpcConn),
		client.WithEvaluateTimeout(cfg.EvaluateTimeout),
		client.WithEndorseTimeout(cfg.EndorseTimeout),
		client.WithSubmitTimeout(cfg.SubmitTimeout),
		client.WithCommitStatusTimeout(cfg.CommitStatusTimeout),
	)
	if err != nil {
		grpcConn.Close()
		return nil, fmt.Errorf("failed to connect gateway: %w", err)
	}

	network := gateway.GetNetwork(cfg.Channel)
	contract := network.GetContract(cfg.Chaincode)

	log.Info().
		Str("peer", cfg.PeerEndpoint).
		Str("channel", cfg.Channel).
		Str("chaincode", cfg.Chaincode).
		Msg("Connected to Fabric gateway")

	return &Connection{
		Gateway:  gateway,
		GrpcConn: grpcConn,
		Network:  network,
		Contract: contract,
	}, nil
}

// Submit endorses and commits a chaincode transaction. ctx bounds the whole
// exchange on top of the configured gateway timeouts.
func (c *Connection) Submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.Contract.SubmitWithContext(ctx, name, client.WithArguments(args...))
}

// Evaluate runs a chaincode query on one peer without committing.
func (c *Connection) Evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.Contract.EvaluateWithContext(ctx, name, client.WithArguments(args...))
}

func (c *Connection) Close() {
	c.Gateway.Close()
	c.GrpcConn.Close()
}

func newGrpcConnection(cfg config.FabricConfig) (*grpc.ClientConn, error) {
	tlsCert, err := os.ReadFile(cfg.TLSCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TLS certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(tlsCert) {
		return nil, fmt.Errorf("failed to add TLS certificate to pool")
	}

	transportCredentials := credentials.NewClientTLSFromCert(certPool, cfg.PeerHostAlias)

	return grpc.NewClient(
		cfg.PeerEndpoint,
		grpc.WithTransportCredentials(transportCredentials),
	)
}

// =============================================================================
// Helper Functions
// =============================================================================

// loadCertificate accepts either a PEM file or an MSP signcerts directory.
func loadCertificate(path string) (*x509.Certificate, error) {
	certPEM, err := readFirstFile(path)
	if err != nil {
		return nil, err
	}
	return identity.CertificateFromPEM(certPEM)
}

// loadPrivateKey accepts either a PEM file or an MSP keystore directory.
func loadPrivateKey(path string) (interface{}, error) {
	keyPEM, err := readFirstFile(path)
	if err != nil {
		return nil, err
	}
	return identity.PrivateKeyFromPEM(keyPEM)
}

func readFirstFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return os.ReadFile(path)
	}

	files, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, file.Name()))
		if err != nil {
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("no file found in %s", path)
}
