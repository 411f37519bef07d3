package kms

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awskms "github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/ruteri/kms-env-resolver/interfaces"
)

// AWSConfig configures how KMS clients are created.
type AWSConfig struct {
	// Endpoint overrides the regional KMS endpoint.
	Endpoint string
	// Profile selects a shared config profile.
	Profile string
	// AccessKey and SecretKey, when both set, replace the credential chain.
	AccessKey string
	SecretKey string
}

// ClientFactory creates a KMS client for a region.
type ClientFactory func(region string) (kmsiface.KMSAPI, error)

// AWSDecrypter decrypts ciphertext with AWS KMS.
type AWSDecrypter struct {
	newClient ClientFactory
	log       *slog.Logger

	mu      sync.Mutex
	clients map[string]kmsiface.KMSAPI
}

// NewAWSDecrypter creates a decrypter creating clients from AWS sessions.
func NewAWSDecrypter(cfg AWSConfig, log *slog.Logger) *AWSDecrypter {
	return NewAWSDecrypterWithFactory(SessionClientFactory(cfg), log)
}

// NewAWSDecrypterWithFactory creates a decrypter using factory to obtain one
// client per region.
func NewAWSDecrypterWithFactory(factory ClientFactory, log *slog.Logger) *AWSDecrypter {
	if log == nil {
		log = slog.Default()
	}

	return &AWSDecrypter{
		newClient: factory,
		log:       log,
		clients:   make(map[string]kmsiface.KMSAPI),
	}
}

// SessionClientFactory builds clients from aws-sdk sessions.
func SessionClientFactory(cfg AWSConfig) ClientFactory {
	return func(region string) (kmsiface.KMSAPI, error) {
		awsCfg := aws.Config{
			Region: aws.String(region),
		}
		if cfg.Endpoint != "" {
			awsCfg.Endpoint = aws.String(cfg.Endpoint)
		}
		if cfg.AccessKey != "" && cfg.SecretKey != "" {
			awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
		}

		sess, err := session.NewSessionWithOptions(session.Options{
			Config:            awsCfg,
			Profile:           cfg.Profile,
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}

		return awskms.New(sess), nil
	}
}

// Decrypt decodes the base64 ciphertext and decrypts it with the key domain
// of region.
func (d *AWSDecrypter) Decrypt(ctx context.Context, ciphertext string, region string) (string, error) {
	start := time.Now()

	blob, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64: %v", interfaces.ErrOracleFailure, err)
	}

	client, err := d.clientFor(region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrOracleFailure, err)
	}

	out, err := client.DecryptWithContext(ctx, &awskms.DecryptInput{
		CiphertextBlob: blob,
	})
	if err != nil {
		d.log.Error("AWS KMS cannot decrypt value",
			slog.String("region", region),
			slog.Duration("duration", time.Since(start)),
			"err", err)
		return "", fmt.Errorf("%w: %w", interfaces.ErrOracleFailure, err)
	}

	d.log.Debug("Decrypted cipher",
		slog.String("region", region),
		slog.String("key_id", aws.StringValue(out.KeyId)),
		slog.Duration("duration", time.Since(start)))

	return string(out.Plaintext), nil
}

// clientFor returns the cached client for region, creating it on first use.
func (d *AWSDecrypter) clientFor(region string) (kmsiface.KMSAPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if client, ok := d.clients[region]; ok {
		return client, nil
	}

	client, err := d.newClient(region)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS client for region %s: %w", region, err)
	}

	d.log.Debug("Created KMS client", slog.String("region", region))
	d.clients[region] = client
	return client, nil
}
