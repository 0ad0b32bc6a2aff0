package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/mikey/subscription-tracker/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	body    []byte
	err     error
	payload map[string]interface{}
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if err := json.Unmarshal(params.Body, &f.payload); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func newTestClient(invoker InvokeModelAPI, modelID string) *BedrockClient {
	logger := zap.NewNop()
	return NewBedrockClient(invoker, modelID, 256, 0.1, 0.9, 1000, logger, utils.NewTextProcessor(logger))
}

func TestBedrockClient_ZeroShotClaude(t *testing.T) {
	invoker := &fakeInvoker{
		body: []byte(`{"completion":" {\"scores\":{\"paid_subscription_event\":0.9,\"other_unrelated\":0.1}}"}`),
	}
	c := newTestClient(invoker, "anthropic.claude-v2")

	scores, err := c.ZeroShot(context.Background(), "Subject: Your receipt", core.LifecycleLabels)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, scores[core.LabelPaidEvent], 1e-9)
	assert.InDelta(t, 0.0, scores[core.LabelCancellation], 1e-9)
	assert.Contains(t, invoker.payload, "max_tokens_to_sample")
}

func TestBedrockClient_GenerateTitan(t *testing.T) {
	invoker := &fakeInvoker{body: []byte(`{"results":[{"outputText":"{\"company\":\"Netflix\"}"}]}`)}
	c := newTestClient(invoker, "amazon.titan-text-express-v1")

	out, err := c.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"company":"Netflix"}`, out)
	assert.Contains(t, invoker.payload, "textGenerationConfig")
}

func TestBedrockClient_InvokeError(t *testing.T) {
	c := newTestClient(&fakeInvoker{err: errors.New("throttled")}, "meta.llama3")

	_, err := c.Generate(context.Background(), "prompt")
	assert.ErrorContains(t, err, "throttled")
	assert.Equal(t, "bedrock/meta.llama3", c.Name())
}
