package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/voicerag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKnowledgeBase = `{
	"products": [
		{
			"product_id": "P001",
			"name": "Wireless Mouse",
			"category": "Electronics",
			"subcategory": "Accessories",
			"brand": "LogiTech",
			"price": 25.0,
			"stock_status": "in_stock",
			"description": "Ergonomic wireless mouse with long battery life",
			"specifications": {"dpi": 1600, "connectivity": "2.4GHz"},
			"rating": 4.5,
			"review_count": 230,
			"reviews": ["Great mouse!", "Battery lasts forever", "A bit small for big hands"],
			"keywords": ["mouse", "wireless", "ergonomic"]
		},
		{
			"product_id": "P002",
			"name": "USB-C Hub",
			"category": "Electronics",
			"price": 39.99
		}
	],
	"orders": [
		{
			"order_id": "ORD-1001",
			"order_status": "shipped",
			"order_date": "2026-08-01",
			"tracking_number": "TRK123456",
			"carrier": "FedEx",
			"estimated_delivery": "2026-08-05",
			"items": [{"product_name": "Wireless Mouse", "quantity": 1, "price": 25.0}],
			"total": 27.5,
			"shipping_cost": 0.0,
			"tax": 2.5
		}
	],
	"policies": {
		"return_policy": {
			"title": "Return Policy",
			"last_updated": "2026-01-15",
			"content": "Items may be returned within 30 days of delivery.",
			"restocking_fee": "none"
		},
		"shipping_policy": {
			"title": "Shipping Policy",
			"content": "Free standard shipping on orders over $35."
		}
	},
	"faqs": [
		{
			"category": "payments",
			"questions": [
				{"question": "What payment methods do you accept?", "answer": "All major credit cards and PayPal."},
				{"question": "Can I pay on delivery?", "answer": "Cash on delivery is not available."}
			]
		}
	],
	"voice_query_scenarios": [
		{
			"category": "product_search",
			"user_intent": "Find a product by feature",
			"sample_queries": ["do you have a wireless mouse", "show me ergonomic mice"],
			"sample_bot_response": "We carry the LogiTech Wireless Mouse at $25."
		}
	]
}`

func writeKnowledgeBase(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("parses all categories", func(t *testing.T) {
		kb, err := Load(writeKnowledgeBase(t, sampleKnowledgeBase), 0)
		require.NoError(t, err)

		assert.Equal(t, 2, kb.Report.Products)
		assert.Equal(t, 1, kb.Report.Orders)
		assert.Equal(t, 2, kb.Report.Policies)
		assert.Equal(t, 2, kb.Report.FAQs)
		assert.Equal(t, 1, kb.Report.Scenarios)
		assert.Equal(t, 0, kb.Report.Skipped)
		assert.Equal(t, 8, kb.Report.Total())
	})

	t.Run("missing file is a configuration error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"), 0)
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeConfiguration, domainErr.Code)
	})

	t.Run("malformed document is a configuration error", func(t *testing.T) {
		_, err := Load(writeKnowledgeBase(t, "{not json"), 0)
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeConfiguration, domainErr.Code)
	})
}

func TestParse(t *testing.T) {
	t.Run("skips record missing required field", func(t *testing.T) {
		kb, err := Parse([]byte(`{
			"products": [
				{"name": "Keyboard", "price": 49.99},
				{"price": 10.0},
				{"name": "Monitor"}
			]
		}`), 0.5)
		require.NoError(t, err)

		assert.Equal(t, 2, kb.Report.Products)
		assert.Equal(t, 1, kb.Report.Skipped)
		require.Len(t, kb.Report.SkipNotes, 1)
		assert.Contains(t, kb.Report.SkipNotes[0], "missing name")
	})

	t.Run("fails when skip ratio exceeded", func(t *testing.T) {
		_, err := Parse([]byte(`{
			"products": [
				{"name": "Keyboard"},
				{"price": 1.0},
				{"price": 2.0}
			]
		}`), 0.25)
		require.Error(t, err)

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeConfiguration, domainErr.Code)
	})

	t.Run("empty document yields empty knowledge base", func(t *testing.T) {
		kb, err := Parse([]byte(`{}`), 0)
		require.NoError(t, err)
		assert.Equal(t, 0, kb.Report.Total())
	})

	t.Run("policies sorted by name", func(t *testing.T) {
		kb, err := Parse([]byte(`{
			"policies": {
				"z_policy": {"title": "Z"},
				"a_policy": {"title": "A"}
			}
		}`), 0)
		require.NoError(t, err)

		require.Len(t, kb.Policies, 2)
		assert.Equal(t, "a_policy", kb.Policies[0].Name)
		assert.Equal(t, "z_policy", kb.Policies[1].Name)
	})

	t.Run("policy without title or content is skipped", func(t *testing.T) {
		kb, err := Parse([]byte(`{
			"policies": {
				"empty_policy": {"last_updated": "2026-01-01"}
			}
		}`), 1.0)
		require.NoError(t, err)
		assert.Empty(t, kb.Policies)
		assert.Equal(t, 1, kb.Report.Skipped)
	})

	t.Run("policy detail fields preserved", func(t *testing.T) {
		kb, err := Parse([]byte(sampleKnowledgeBase), 0)
		require.NoError(t, err)

		returnPolicy := kb.Policies[0]
		assert.Equal(t, "return_policy", returnPolicy.Name)
		assert.Equal(t, "none", returnPolicy.Details["restocking_fee"])
	})

	t.Run("faq missing answer is skipped", func(t *testing.T) {
		kb, err := Parse([]byte(`{
			"faqs": [
				{"category": "misc", "questions": [
					{"question": "Where are you based?"},
					{"question": "Do you ship abroad?", "answer": "Yes, to most countries."}
				]}
			]
		}`), 0.5)
		require.NoError(t, err)
		assert.Equal(t, 1, kb.Report.FAQs)
		assert.Equal(t, 1, kb.Report.Skipped)
	})
}
