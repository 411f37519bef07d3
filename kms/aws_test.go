package kms

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	awskms "github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/ruteri/kms-env-resolver/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKMSClient implements kmsiface.KMSAPI for testing. Only Decrypt is mocked.
type MockKMSClient struct {
	kmsiface.KMSAPI
	mock.Mock
}

func (m *MockKMSClient) DecryptWithContext(ctx aws.Context, input *awskms.DecryptInput, opts ...request.Option) (*awskms.DecryptOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awskms.DecryptOutput), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAWSDecrypter_Decrypt(t *testing.T) {
	blob := []byte{0x01, 0x02, 0x03, 0xfe}
	ciphertext := base64.StdEncoding.EncodeToString(blob)

	client := &MockKMSClient{}
	client.On("DecryptWithContext", mock.Anything, &awskms.DecryptInput{CiphertextBlob: blob}).
		Return(&awskms.DecryptOutput{Plaintext: []byte("hunter2"), KeyId: aws.String("arn:aws:kms:eu-west-1:1:key/abc")}, nil).
		Once()

	var regions []string
	decrypter := NewAWSDecrypterWithFactory(func(region string) (kmsiface.KMSAPI, error) {
		regions = append(regions, region)
		return client, nil
	}, testLogger())

	plaintext, err := decrypter.Decrypt(context.Background(), ciphertext, "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plaintext)
	assert.Equal(t, []string{"eu-west-1"}, regions)
	client.AssertExpectations(t)
}

func TestAWSDecrypter_ReusesClientPerRegion(t *testing.T) {
	ciphertext := base64.StdEncoding.EncodeToString([]byte("blob"))

	var mu sync.Mutex
	created := map[string]int{}
	decrypter := NewAWSDecrypterWithFactory(func(region string) (kmsiface.KMSAPI, error) {
		mu.Lock()
		created[region]++
		mu.Unlock()

		client := &MockKMSClient{}
		client.On("DecryptWithContext", mock.Anything, mock.Anything).Return(&awskms.DecryptOutput{Plaintext: []byte(region)}, nil)
		return client, nil
	}, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, region := range []string{"us-east-1", "eu-west-1"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				plaintext, err := decrypter.Decrypt(context.Background(), ciphertext, region)
				assert.NoError(t, err)
				assert.Equal(t, region, plaintext)
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"us-east-1": 1, "eu-west-1": 1}, created)
}

func TestAWSDecrypter_Errors(t *testing.T) {
	validCiphertext := base64.StdEncoding.EncodeToString([]byte("blob"))
	accessDenied := awserr.New(awskms.ErrCodeInvalidCiphertextException, "invalid ciphertext", nil)

	tests := []struct {
		name       string
		ciphertext string
		factory    ClientFactory
		wantAWS    bool
	}{
		{
			name:       "malformed base64",
			ciphertext: "not base64!",
			factory: func(region string) (kmsiface.KMSAPI, error) {
				t.Fatal("no client should be created for malformed ciphertext")
				return nil, nil
			},
		},
		{
			name:       "client creation fails",
			ciphertext: validCiphertext,
			factory: func(region string) (kmsiface.KMSAPI, error) {
				return nil, errors.New("no credentials")
			},
		},
		{
			name:       "KMS rejects ciphertext",
			ciphertext: validCiphertext,
			factory: func(region string) (kmsiface.KMSAPI, error) {
				client := &MockKMSClient{}
				client.On("DecryptWithContext", mock.Anything, mock.Anything).Return(nil, accessDenied)
				return client, nil
			},
			wantAWS: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decrypter := NewAWSDecrypterWithFactory(tt.factory, testLogger())

			_, err := decrypter.Decrypt(context.Background(), tt.ciphertext, "us-east-1")
			require.ErrorIs(t, err, interfaces.ErrOracleFailure)

			if tt.wantAWS {
				var aerr awserr.Error
				require.ErrorAs(t, err, &aerr)
				assert.Equal(t, awskms.ErrCodeInvalidCiphertextException, aerr.Code())
			}
		})
	}
}

func TestAWSDecrypter_FailedClientIsNotCached(t *testing.T) {
	attempts := 0
	decrypter := NewAWSDecrypterWithFactory(func(region string) (kmsiface.KMSAPI, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		client := &MockKMSClient{}
		client.On("DecryptWithContext", mock.Anything, mock.Anything).Return(&awskms.DecryptOutput{Plaintext: []byte("ok")}, nil)
		return client, nil
	}, testLogger())

	ciphertext := base64.StdEncoding.EncodeToString([]byte("blob"))

	_, err := decrypter.Decrypt(context.Background(), ciphertext, "us-east-1")
	require.Error(t, err)

	plaintext, err := decrypter.Decrypt(context.Background(), ciphertext, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", plaintext)
	assert.Equal(t, 2, attempts)
}

func TestSessionClientFactory(t *testing.T) {
	factory := SessionClientFactory(AWSConfig{
		Endpoint:  "http://127.0.0.1:4566",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})

	client, err := factory("eu-west-1")
	require.NoError(t, err)

	kmsClient, ok := client.(*awskms.KMS)
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", aws.StringValue(kmsClient.Config.Region))
	assert.Equal(t, "http://127.0.0.1:4566", aws.StringValue(kmsClient.Config.Endpoint))
}
