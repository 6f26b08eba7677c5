/*
SPIFFE Integration
Provides cryptographic identity verification using SPIFFE/SPIRE
*/

package identity

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/svid/x509svid"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// SPIFFEVerifier verifies SPIFFE SVIDs
type SPIFFEVerifier struct {
	source *workloadapi.X509Source
	ctx    context.Context
}

// NewSPIFFEVerifier creates a new SPIFFE verifier
func NewSPIFFEVerifier(socketPath string) (*SPIFFEVerifier, error) {
	// Use a timeout to avoid blocking startup when SPIRE agent is unavailable
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Connect to SPIRE agent
	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SPIRE: %w", err)
	}

	slog.Info("Connected to SPIRE agent at", "socket_path", socketPath)
	return &SPIFFEVerifier{
		source: source,
		ctx:    context.Background(),
	}, nil
}

// VerifySVID verifies a SPIFFE SVID and returns its hash
func (sv *SPIFFEVerifier) VerifySVID(spiffeID string) (uint64, error) {
	// Parse SPIFFE ID
	id, err := spiffeid.FromString(spiffeID)
	if err != nil {
		return 0, fmt.Errorf("invalid SPIFFE ID: %w", err)
	}

	// Get SVID from source
	svid, err := sv.source.GetX509SVID()
	if err != nil {
		return 0, fmt.Errorf("failed to get SVID: %w", err)
	}

	// Verify SPIFFE ID matches
	if svid.ID.String() != id.String() {
		return 0, fmt.Errorf("SPIFFE ID mismatch: expected %s, got %s", id, svid.ID)
	}

	// Calculate hash of SVID
	hash := sv.calculateSVIDHash(svid.Certificates[0].Raw)

	slog.Info("Verified SPIFFE ID: (hash: )", "spiffe_i_d", spiffeID, "hash", hash)
	return hash, nil
}

// calculateSVIDHash calculates a 64-bit hash of the SVID certificate
func (sv *SPIFFEVerifier) calculateSVIDHash(certDER []byte) uint64 {
	hash := sha256.Sum256(certDER)

	// Take first 8 bytes as uint64
	var result uint64
	for i := 0; i < 8; i++ {
		result = (result << 8) | uint64(hash[i])
	}

	return result
}

// GetTLSConfig returns TLS config with SPIFFE authentication
func (sv *SPIFFEVerifier) GetTLSConfig() (*tls.Config, error) {
	// Create TLS config for mTLS
	tlsConf := tlsconfig.MTLSClientConfig(sv.source, sv.source, tlsconfig.AuthorizeAny())
	return tlsConf, nil
}

// Close cleanup
func (sv *SPIFFEVerifier) Close() error {
	return sv.source.Close()
}

// GenerateSPIFFEID generates a SPIFFE ID for an agent
func GenerateSPIFFEID(trustDomain, agentID string) string {
	return fmt.Sprintf("spiffe://%s/agent/%s", trustDomain, agentID)
}

// Example SPIFFE IDs:
// spiffe://ocx.example.com/agent/agent-12345
// spiffe://ocx.example.com/agent/procurement-bot
// spiffe://ocx.example.com/agent/finance-controller

// Verifier gates control-plane RPCs behind an allow-list of SPIFFE IDs,
// implementing internal/controlplane.Authorizer. It reads the caller's
// leaf certificate off the gRPC peer's mTLS connection state rather than
// trusting a caller-supplied ID string.
type Verifier struct {
	allowed map[string]bool
}

// NewVerifier builds an admission allow-list of SPIFFE ID strings (e.g.
// "spiffe://sandboxcore.internal/client/build-farm-1"). sv is not used by
// NewVerifier, which cannot fail; the fail-fast check against the SPIRE
// agent is the one NewSPIFFEVerifier performs. The gRPC server's
// transport credentials (built from sv.GetTLSConfig) are what actually
// populates the peer certificate Authorize reads.
func NewVerifier(sv *SPIFFEVerifier, allowedIDs []string) *Verifier {
	allowed := make(map[string]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	return &Verifier{allowed: allowed}
}

// Authorize extracts the caller's SPIFFE ID from the incoming gRPC
// connection's peer certificate and checks it against the allow-list.
func (v *Verifier) Authorize(ctx context.Context) error {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return fmt.Errorf("identity: no peer info on context")
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return fmt.Errorf("identity: connection is not mTLS")
	}
	if len(tlsInfo.State.PeerCertificates) == 0 {
		return fmt.Errorf("identity: no peer certificate presented")
	}

	id, err := x509svid.IDFromCert(tlsInfo.State.PeerCertificates[0])
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if !v.allowed[id.String()] {
		slog.Warn("identity: rejecting unauthorized caller", "spiffe_id", id.String())
		return fmt.Errorf("identity: %s is not authorized", id)
	}
	return nil
}
