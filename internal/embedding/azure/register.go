package azure

import "github.com/efebarandurmaz/docindex/internal/embedding"

// Register adds the "azure" and "openai" constructors to factory. Both the
// CLI and the Temporal worker build their clients through it.
func Register(factory *embedding.Factory) {
	factory.Register("azure", func(c embedding.ProviderConfig) (embedding.Client, error) {
		return NewAzure(c.APIKey, c.Endpoint)
	})
	factory.Register("openai", func(c embedding.ProviderConfig) (embedding.Client, error) {
		return NewOpenAI(c.APIKey, c.Endpoint)
	})
}
