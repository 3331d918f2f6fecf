package catalog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/cloo-solutions/voicerag/internal/domain"
)

// DefaultMaxSkipRatio is the fraction of malformed records tolerated
// before the whole load is treated as fatal.
const DefaultMaxSkipRatio = 0.25

// Product is a single catalog product record.
type Product struct {
	ProductID      string         `json:"product_id"`
	Name           string         `json:"name"`
	Category       string         `json:"category"`
	Subcategory    string         `json:"subcategory"`
	Brand          string         `json:"brand"`
	Price          *float64       `json:"price"`
	StockStatus    string         `json:"stock_status"`
	Description    string         `json:"description"`
	Specifications map[string]any `json:"specifications"`
	Rating         *float64       `json:"rating"`
	ReviewCount    int            `json:"review_count"`
	Reviews        []string       `json:"reviews"`
	Keywords       []string       `json:"keywords"`
}

// OrderItem is a line item within an order.
type OrderItem struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Order is a single customer order record.
type Order struct {
	OrderID           string      `json:"order_id"`
	Status            string      `json:"order_status"`
	OrderDate         string      `json:"order_date"`
	TrackingNumber    string      `json:"tracking_number"`
	Carrier           string      `json:"carrier"`
	EstimatedDelivery string      `json:"estimated_delivery"`
	Items             []OrderItem `json:"items"`
	Total             *float64    `json:"total"`
	ShippingCost      *float64    `json:"shipping_cost"`
	Tax               *float64    `json:"tax"`
}

// Policy is a named store policy with its full body and any
// policy-specific detail fields preserved.
type Policy struct {
	Name        string
	Title       string
	LastUpdated string
	Content     string
	Details     map[string]any
}

// FAQ is one question/answer pair.
type FAQ struct {
	Category string
	Question string
	Answer   string
}

// Scenario is a sample voice-query scenario from the knowledge base.
type Scenario struct {
	Category          string   `json:"category"`
	UserIntent        string   `json:"user_intent"`
	SampleQueries     []string `json:"sample_queries"`
	SampleBotResponse string   `json:"sample_bot_response"`
}

// LoadReport summarizes a knowledge-base load: how many records each
// category contributed and how many malformed records were skipped.
type LoadReport struct {
	Products  int
	Orders    int
	Policies  int
	FAQs      int
	Scenarios int
	Skipped   int
	SkipNotes []string
}

// Total returns the number of records kept across all categories.
func (r *LoadReport) Total() int {
	return r.Products + r.Orders + r.Policies + r.FAQs + r.Scenarios
}

// KnowledgeBase is the parsed catalog. It is loaded once per process
// lifetime and treated as immutable afterwards.
type KnowledgeBase struct {
	Products  []Product
	Orders    []Order
	Policies  []Policy
	FAQs      []FAQ
	Scenarios []Scenario
	Report    LoadReport
}

// rawKnowledgeBase defers per-record decoding so a single malformed
// record can be skipped without aborting the whole load.
type rawKnowledgeBase struct {
	Products  []json.RawMessage          `json:"products"`
	Orders    []json.RawMessage          `json:"orders"`
	Policies  map[string]json.RawMessage `json:"policies"`
	FAQs      []json.RawMessage          `json:"faqs"`
	Scenarios []json.RawMessage          `json:"voice_query_scenarios"`
}

type rawFAQCategory struct {
	Category  string            `json:"category"`
	Questions []json.RawMessage `json:"questions"`
}

type rawFAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Load reads and parses the knowledge base from a local file.
// A missing file or malformed top-level structure is a fatal
// configuration error for the subsystem.
func Load(path string, maxSkipRatio float64) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				fmt.Sprintf("knowledge base file %s not found", path), err)
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			"failed to read knowledge base", err)
	}
	return Parse(data, maxSkipRatio)
}

// Parse decodes a knowledge-base document. Malformed individual records
// are skipped and counted; if the skip ratio exceeds maxSkipRatio the
// whole load fails.
func Parse(data []byte, maxSkipRatio float64) (*KnowledgeBase, error) {
	if maxSkipRatio <= 0 {
		maxSkipRatio = DefaultMaxSkipRatio
	}

	var raw rawKnowledgeBase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			"knowledge base is malformed", err)
	}

	kb := &KnowledgeBase{}
	attempted := 0

	for i, msg := range raw.Products {
		attempted++
		var p Product
		if err := json.Unmarshal(msg, &p); err != nil {
			kb.skip(fmt.Sprintf("products[%d]: %v", i, err))
			continue
		}
		if p.Name == "" {
			kb.skip(fmt.Sprintf("products[%d]: missing name", i))
			continue
		}
		kb.Products = append(kb.Products, p)
	}
	kb.Report.Products = len(kb.Products)

	for i, msg := range raw.Orders {
		attempted++
		var o Order
		if err := json.Unmarshal(msg, &o); err != nil {
			kb.skip(fmt.Sprintf("orders[%d]: %v", i, err))
			continue
		}
		if o.OrderID == "" {
			kb.skip(fmt.Sprintf("orders[%d]: missing order_id", i))
			continue
		}
		kb.Orders = append(kb.Orders, o)
	}
	kb.Report.Orders = len(kb.Orders)

	// Policies are keyed by name in the source document. Sort names so
	// extraction order and chunk IDs stay stable across runs.
	policyNames := make([]string, 0, len(raw.Policies))
	for name := range raw.Policies {
		policyNames = append(policyNames, name)
	}
	sort.Strings(policyNames)
	for _, name := range policyNames {
		attempted++
		policy, err := parsePolicy(name, raw.Policies[name])
		if err != nil {
			kb.skip(fmt.Sprintf("policies[%s]: %v", name, err))
			continue
		}
		kb.Policies = append(kb.Policies, *policy)
	}
	kb.Report.Policies = len(kb.Policies)

	for i, msg := range raw.FAQs {
		var cat rawFAQCategory
		if err := json.Unmarshal(msg, &cat); err != nil {
			attempted++
			kb.skip(fmt.Sprintf("faqs[%d]: %v", i, err))
			continue
		}
		for j, qmsg := range cat.Questions {
			attempted++
			var q rawFAQ
			if err := json.Unmarshal(qmsg, &q); err != nil {
				kb.skip(fmt.Sprintf("faqs[%d].questions[%d]: %v", i, j, err))
				continue
			}
			if q.Question == "" || q.Answer == "" {
				kb.skip(fmt.Sprintf("faqs[%d].questions[%d]: missing question or answer", i, j))
				continue
			}
			kb.FAQs = append(kb.FAQs, FAQ{Category: cat.Category, Question: q.Question, Answer: q.Answer})
		}
	}
	kb.Report.FAQs = len(kb.FAQs)

	for i, msg := range raw.Scenarios {
		attempted++
		var s Scenario
		if err := json.Unmarshal(msg, &s); err != nil {
			kb.skip(fmt.Sprintf("voice_query_scenarios[%d]: %v", i, err))
			continue
		}
		if s.UserIntent == "" && len(s.SampleQueries) == 0 {
			kb.skip(fmt.Sprintf("voice_query_scenarios[%d]: missing user_intent and sample_queries", i))
			continue
		}
		kb.Scenarios = append(kb.Scenarios, s)
	}
	kb.Report.Scenarios = len(kb.Scenarios)

	if attempted > 0 {
		ratio := float64(kb.Report.Skipped) / float64(attempted)
		if ratio > maxSkipRatio {
			return nil, domain.NewDomainError(domain.ErrCodeConfiguration,
				fmt.Sprintf("too many malformed knowledge base records: %d of %d skipped", kb.Report.Skipped, attempted))
		}
	}

	if kb.Report.Skipped > 0 {
		log.Printf("knowledge base loaded with %d records (%d malformed records skipped)",
			kb.Report.Total(), kb.Report.Skipped)
	}

	return kb, nil
}

func (kb *KnowledgeBase) skip(note string) {
	kb.Report.Skipped++
	kb.Report.SkipNotes = append(kb.Report.SkipNotes, note)
}

// parsePolicy decodes a policy object, preserving detail fields that are
// not part of the common title/content envelope.
func parsePolicy(name string, msg json.RawMessage) (*Policy, error) {
	var fields map[string]any
	if err := json.Unmarshal(msg, &fields); err != nil {
		return nil, err
	}

	p := &Policy{Name: name, Details: make(map[string]any)}
	for key, value := range fields {
		switch key {
		case "title":
			if s, ok := value.(string); ok {
				p.Title = s
			}
		case "last_updated":
			if s, ok := value.(string); ok {
				p.LastUpdated = s
			}
		case "content":
			if s, ok := value.(string); ok {
				p.Content = s
			}
		default:
			p.Details[key] = value
		}
	}

	if p.Title == "" && p.Content == "" {
		return nil, fmt.Errorf("missing title and content")
	}
	return p, nil
}
