package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// RequestSigner signs an outgoing provider request in place.
type RequestSigner interface {
	SignRequest(ctx context.Context, req *http.Request, body []byte) error
}

// BedrockSigner signs requests to a Bedrock runtime endpoint with AWS SigV4.
type BedrockSigner struct {
	creds  aws.CredentialsProvider
	signer *v4.Signer
	region string
}

// NewBedrockSigner loads the default AWS credential chain for the region.
func NewBedrockSigner(ctx context.Context, region string) (*BedrockSigner, error) {
	if region == "" {
		return nil, fmt.Errorf("bedrock region is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &BedrockSigner{
		creds:  cfg.Credentials,
		signer: v4.NewSigner(),
		region: region,
	}, nil
}

// SignRequest applies a SigV4 signature for the bedrock service.
func (s *BedrockSigner) SignRequest(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieving AWS credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	return s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "bedrock", s.region, time.Now())
}
