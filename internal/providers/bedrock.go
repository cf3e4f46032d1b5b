package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/routergen/internal/record"
)

const bedrockDefaultMaxTokens = 4096

// converser is the slice of the Bedrock runtime client this provider uses.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider generates batches through the Bedrock Converse API.
// Authentication uses explicit keys when given, otherwise the default AWS
// credential chain.
type BedrockProvider struct {
	name   string
	client converser
}

var _ Provider = (*BedrockProvider)(nil)

// NewBedrockProvider loads AWS configuration and creates a runtime client.
func NewBedrockProvider(ctx context.Context, cfg Config) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load AWS config: %w", cfg.Name, err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.BaseURL != "" {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		}
	})
	return &BedrockProvider{name: cfg.Name, client: client}, nil
}

// Name returns the configured provider name.
func (p *BedrockProvider) Name() string {
	return p.name
}

// GenerateBatch sends one user turn and parses the text content of the reply.
func (p *BedrockProvider) GenerateBatch(ctx context.Context, req BatchRequest) ([]record.TrainingExample, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = bedrockDefaultMaxTokens
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
		}},
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: anthropicJSONInstruction},
		},
		InferenceConfig: &types.InferenceConfiguration{
			// #nosec G115 -- token budgets are small
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(float32(clampTemperature(req.Temperature, 1))),
		},
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, newSchemaError(p.name, req.Model, &record.SchemaError{Cause: errors.New("converse returned no message")})
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	return parseReply(p.name, req.Model, text.String())
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	providerErr := NewProviderError(p.name, model, err)

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		providerErr = providerErr.WithStatus(respErr.HTTPStatusCode())
		if id := respErr.ServiceRequestID(); id != "" {
			providerErr = providerErr.WithRequestID(id)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithCode(apiErr.ErrorCode())
		if msg := apiErr.ErrorMessage(); msg != "" {
			providerErr = providerErr.WithMessage(msg)
		}
	}
	return providerErr
}
