package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSMClient struct {
	params  map[string]string
	err     error
	batches [][]string
}

func (f *fakeSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		if v, ok := f.params[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*SSMProvider)(nil)
	var _ SecretProvider = (*EnvVarProvider)(nil)
}

func TestSSMProviderBatches(t *testing.T) {
	params := map[string]string{}
	keys := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		k := "/dev/clientdesk/p" + string(rune('a'+i))
		params[k] = "v" + string(rune('a'+i))
		keys = append(keys, k)
	}
	client := &fakeSSMClient{params: params}
	provider := newSSMProviderWithClient("us-east-1", client)

	result, err := provider.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.batches) != 2 || len(client.batches[0]) != 10 || len(client.batches[1]) != 2 {
		t.Errorf("unexpected batching: %v", client.batches)
	}
	if len(result) != 12 || result["/dev/clientdesk/pa"] != "va" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestSSMProviderInvalidParameter(t *testing.T) {
	provider := newSSMProviderWithClient("us-east-1", &fakeSSMClient{params: map[string]string{}})
	if _, err := provider.GetParametersBatch(context.Background(), []string{"/missing"}); err == nil {
		t.Fatal("expected error for invalid parameter")
	}
}

func TestSSMProviderClientError(t *testing.T) {
	boom := errors.New("access denied")
	provider := newSSMProviderWithClient("us-east-1", &fakeSSMClient{err: boom})
	if _, err := provider.GetParametersBatch(context.Background(), []string{"/x"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	provider := NewSSMProvider("us-east-1", "")
	result, err := provider.GetParametersBatch(context.Background(), nil)
	if err != nil || result == nil || len(result) != 0 {
		t.Fatalf("GetParametersBatch(nil) = (%v, %v), want empty map", result, err)
	}
}

func TestSSMProviderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := newSSMProviderWithClient("us-east-1", &fakeSSMClient{params: map[string]string{"/x": "y"}})
	if _, err := provider.GetParametersBatch(ctx, []string{"/x"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("CLIENTDESK_TEST_SECRET", "value-alpha")

	result, err := NewEnvVarProvider().GetParametersBatch(context.Background(), []string{"CLIENTDESK_TEST_SECRET", "CLIENTDESK_TEST_UNSET_XYZ"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result["CLIENTDESK_TEST_SECRET"] != "value-alpha" {
		t.Errorf("unexpected result: %v", result)
	}
}
