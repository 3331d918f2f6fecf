package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cloo-solutions/voicerag/internal/domain"
)

const maxReviewSnippets = 2

// ExtractChunks flattens the knowledge base into self-contained text
// passages. It is a pure function of its input: extraction order is
// fixed (products, orders, policies, faqs, scenarios; record order
// within each) so chunk IDs are stable across runs.
func ExtractChunks(kb *KnowledgeBase) []domain.Chunk {
	if kb == nil {
		return []domain.Chunk{}
	}

	chunks := make([]domain.Chunk, 0, kb.Report.Total())

	for i, p := range kb.Products {
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("product_%d", i),
			Category: domain.ChunkCategoryProduct,
			Text:     productText(p),
			Metadata: chunkMetadata(domain.ChunkCategoryProduct, "product_id", p.ProductID, "name", p.Name),
		})
	}
	for i, o := range kb.Orders {
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("order_%d", i),
			Category: domain.ChunkCategoryOrder,
			Text:     orderText(o),
			Metadata: chunkMetadata(domain.ChunkCategoryOrder, "order_id", o.OrderID),
		})
	}
	for i, p := range kb.Policies {
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("policy_%d", i),
			Category: domain.ChunkCategoryPolicy,
			Text:     policyText(p),
			Metadata: chunkMetadata(domain.ChunkCategoryPolicy, "policy", p.Name),
		})
	}
	for i, f := range kb.FAQs {
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("faq_%d", i),
			Category: domain.ChunkCategoryFAQ,
			Text:     faqText(f),
			Metadata: chunkMetadata(domain.ChunkCategoryFAQ, "faq_category", f.Category),
		})
	}
	for i, s := range kb.Scenarios {
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("scenario_%d", i),
			Category: domain.ChunkCategoryScenario,
			Text:     scenarioText(s),
			Metadata: chunkMetadata(domain.ChunkCategoryScenario, "scenario_category", s.Category),
		})
	}

	return chunks
}

// productText combines name, pricing, specs, and a condensed review
// summary into one passage. Reviews are never emitted on their own: a
// review fragment without its product is not self-contained.
func productText(p Product) string {
	var parts []string

	if p.ProductID != "" {
		parts = append(parts, fmt.Sprintf("Product: %s (ID: %s).", p.Name, p.ProductID))
	} else {
		parts = append(parts, fmt.Sprintf("Product: %s.", p.Name))
	}
	if p.Category != "" && p.Subcategory != "" {
		parts = append(parts, fmt.Sprintf("Category: %s - %s.", p.Category, p.Subcategory))
	} else if p.Category != "" {
		parts = append(parts, fmt.Sprintf("Category: %s.", p.Category))
	}
	if p.Brand != "" {
		parts = append(parts, fmt.Sprintf("Brand: %s.", p.Brand))
	}
	if p.Price != nil {
		parts = append(parts, fmt.Sprintf("Price: $%.2f.", *p.Price))
	}
	if p.StockStatus != "" {
		parts = append(parts, fmt.Sprintf("Stock status: %s.", p.StockStatus))
	}
	if p.Description != "" {
		parts = append(parts, fmt.Sprintf("Description: %s.", strings.TrimSuffix(p.Description, ".")))
	}
	if len(p.Specifications) > 0 {
		parts = append(parts, fmt.Sprintf("Specifications: %s.", formatFieldMap(p.Specifications)))
	}
	if p.Rating != nil {
		parts = append(parts, fmt.Sprintf("Rating: %.1f/5.0 (%d reviews).", *p.Rating, p.ReviewCount))
	}
	if len(p.Reviews) > 0 {
		snippets := p.Reviews
		if len(snippets) > maxReviewSnippets {
			snippets = snippets[:maxReviewSnippets]
		}
		parts = append(parts, fmt.Sprintf("Review highlights: %s.", strings.Join(snippets, " | ")))
	}
	if len(p.Keywords) > 0 {
		parts = append(parts, fmt.Sprintf("Keywords: %s.", strings.Join(p.Keywords, ", ")))
	}

	return strings.Join(parts, " ")
}

// orderText combines order identity, status, tracking, and contents.
func orderText(o Order) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Order ID: %s.", o.OrderID))
	if o.Status != "" {
		parts = append(parts, fmt.Sprintf("Status: %s.", o.Status))
	}
	if o.OrderDate != "" {
		parts = append(parts, fmt.Sprintf("Order date: %s.", o.OrderDate))
	}
	if o.TrackingNumber != "" {
		if o.Carrier != "" {
			parts = append(parts, fmt.Sprintf("Tracking: %s via %s.", o.TrackingNumber, o.Carrier))
		} else {
			parts = append(parts, fmt.Sprintf("Tracking: %s.", o.TrackingNumber))
		}
	}
	if o.EstimatedDelivery != "" {
		parts = append(parts, fmt.Sprintf("Estimated delivery: %s.", o.EstimatedDelivery))
	}
	if len(o.Items) > 0 {
		items := make([]string, 0, len(o.Items))
		for _, item := range o.Items {
			items = append(items, fmt.Sprintf("%s (qty %d, $%.2f)", item.ProductName, item.Quantity, item.Price))
		}
		parts = append(parts, fmt.Sprintf("Items: %s.", strings.Join(items, "; ")))
	}
	if o.Total != nil {
		total := fmt.Sprintf("Total: $%.2f", *o.Total)
		if o.ShippingCost != nil && o.Tax != nil {
			total += fmt.Sprintf(" (shipping $%.2f, tax $%.2f)", *o.ShippingCost, *o.Tax)
		}
		parts = append(parts, total+".")
	}

	return strings.Join(parts, " ")
}

// policyText preserves the full policy body plus any detail fields.
// Policies are never truncated.
func policyText(p Policy) string {
	var parts []string

	title := p.Title
	if title == "" {
		title = p.Name
	}
	parts = append(parts, fmt.Sprintf("Policy: %s.", title))
	if p.LastUpdated != "" {
		parts = append(parts, fmt.Sprintf("Last updated: %s.", p.LastUpdated))
	}
	if p.Content != "" {
		parts = append(parts, p.Content)
	}
	if len(p.Details) > 0 {
		parts = append(parts, formatFieldMap(p.Details)+".")
	}

	return strings.Join(parts, " ")
}

func faqText(f FAQ) string {
	if f.Category != "" {
		return fmt.Sprintf("FAQ category: %s. Question: %s Answer: %s", f.Category, f.Question, f.Answer)
	}
	return fmt.Sprintf("Question: %s Answer: %s", f.Question, f.Answer)
}

func scenarioText(s Scenario) string {
	var parts []string

	if s.Category != "" {
		parts = append(parts, fmt.Sprintf("Voice scenario: %s.", s.Category))
	}
	if s.UserIntent != "" {
		parts = append(parts, fmt.Sprintf("Intent: %s.", s.UserIntent))
	}
	if len(s.SampleQueries) > 0 {
		queries := s.SampleQueries
		if len(queries) > 3 {
			queries = queries[:3]
		}
		parts = append(parts, fmt.Sprintf("Sample queries: %s.", strings.Join(queries, ", ")))
	}
	if s.SampleBotResponse != "" {
		parts = append(parts, fmt.Sprintf("Typical response: %s", s.SampleBotResponse))
	}

	return strings.Join(parts, " ")
}

// formatFieldMap renders a detail map deterministically, sorted by key.
func formatFieldMap(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rendered := make([]string, 0, len(keys))
	for _, key := range keys {
		rendered = append(rendered, fmt.Sprintf("%s: %s", key, formatFieldValue(fields[key])))
	}
	return strings.Join(rendered, "; ")
}

func formatFieldValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, formatFieldValue(item))
		}
		return strings.Join(items, ", ")
	case map[string]any:
		return formatFieldMap(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func chunkMetadata(category domain.ChunkCategory, pairs ...string) map[string]string {
	md := map[string]string{"category": string(category)}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			md[pairs[i]] = pairs[i+1]
		}
	}
	return md
}
