package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Bedrock model identifiers and their output dimensions
var bedrockModels = map[string]struct {
	modelID    string
	dimensions int
}{
	"titan-embed-text-v2":   {"amazon.titan-embed-text-v2:0", 1024},
	"embed-english-v3":      {"cohere.embed-english-v3", 1024},
	"embed-multilingual-v3": {"cohere.embed-multilingual-v3", 1024},
}

// BedrockProvider implements the Provider interface for Amazon Bedrock
// embedding models (Titan and Cohere request shapes).
type BedrockProvider struct {
	client     *bedrockruntime.Client
	model      string
	modelID    string
	dimensions int
}

// NewBedrockProvider creates a new Bedrock embedding provider using the
// default AWS credential provider chain
func NewBedrockProvider(ctx context.Context, region, model string) (*BedrockProvider, error) {
	spec, ok := bedrockModels[model]
	if !ok {
		return nil, fmt.Errorf("unsupported Bedrock embedding model: %s", model)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:     bedrockruntime.NewFromConfig(cfg),
		model:      model,
		modelID:    spec.modelID,
		dimensions: spec.dimensions,
	}, nil
}

// titanEmbedRequest represents the request for Titan embedding models
type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

// titanEmbedResponse represents the response from Titan embedding models
type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// cohereEmbedRequest represents the request for Cohere embedding models
type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type,omitempty"`
}

// cohereEmbedResponse represents the response from Cohere embedding models
type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Provider.Embed
func (p *BedrockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var requestBody []byte
	var err error

	switch p.model {
	case "titan-embed-text-v2":
		requestBody, err = json.Marshal(titanEmbedRequest{InputText: text})
	default:
		requestBody, err = json.Marshal(cohereEmbedRequest{
			Texts:     []string{text},
			InputType: "search_document",
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke model: %w", err)
	}

	var vector []float32
	if p.model == "titan-embed-text-v2" {
		var resp titanEmbedResponse
		if err := json.Unmarshal(output.Body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse Titan response: %w", err)
		}
		vector = resp.Embedding
	} else {
		var resp cohereEmbedResponse
		if err := json.Unmarshal(output.Body, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse Cohere response: %w", err)
		}
		if len(resp.Embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings in response")
		}
		vector = resp.Embeddings[0]
	}

	if len(vector) != p.dimensions {
		return nil, fmt.Errorf("Bedrock returned %d dimensions, expected %d", len(vector), p.dimensions)
	}

	return vector, nil
}

// Dimensions implements Provider.Dimensions
func (p *BedrockProvider) Dimensions() int {
	return p.dimensions
}

// Model implements Provider.Model
func (p *BedrockProvider) Model() string {
	return p.model
}
