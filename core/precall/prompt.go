package precall

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/kilianp07/salesintel/core/attribution"
	"github.com/kilianp07/salesintel/core/model"
)

var promptTemplate = template.Must(template.New("precall").Funcs(template.FuncMap{
	"title":  model.Title,
	"money":  func(v float64) string { return fmt.Sprintf("$%.1fK", v) },
	"abs":    math.Abs,
	"fixed2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"verb": func(d attribution.Direction) string {
		if d == attribution.Positive {
			return "increases"
		}
		return "decreases"
	},
}).Parse(`You are an expert enterprise sales strategist. Create a compelling pre-call plan for an account executive preparing to engage with this B2B software customer.

CUSTOMER PROFILE:
{{.Profile}}

SHAP ANALYSIS INSIGHTS:
The model predicts {{money .C.PredictedRevenue}} expansion revenue potential (vs. {{money .C.BaselineValue}} baseline).

Top 5 Revenue Drivers:
{{range .C.TopDrivers}}- {{title .Feature}}: {{fixed2 .Value}} ({{verb .Direction}} revenue by {{money (abs .Contribution)}})
{{end}}
This customer has been allocated {{.C.AllocatedActions}} high-priority actions.

RECOMMENDED PROMOTION:
{{.C.RecommendedPromotion}}
Promotional Sensitivities:
- Price Discount: {{fixed2 .C.Sensitivities.Discount}}
- Extended SLA: {{fixed2 .C.Sensitivities.SLA}}
- Training Credits: {{fixed2 .C.Sensitivities.Training}}
- Implementation Support: {{fixed2 .C.Sensitivities.ImplementationSupport}}

KNOWLEDGE BASE:

{{range .Docs}}--- {{.Name}} ---
{{.Content}}...

{{end}}
CREATE A PRE-CALL PLAN that:

1. **Executive Summary**: 2-3 sentences on why this customer is high-priority and what the meeting should accomplish

2. **Key Talking Points**: Based on SHAP drivers, what specific capabilities or solutions should you emphasize?
   IMPORTANT: Cite specific knowledge base documents when referencing information using format [Source: document_name]

3. **Customer Pain Points & Needs**: What does the SHAP analysis reveal about their situation? What problems are they likely facing?

4. **Competitive Positioning**: Based on the knowledge base, how should you position against competitors? Include citations.

5. **Promotional Strategy**: Explain why the recommended promotion ({{.C.RecommendedPromotion}}) aligns with this customer's sensitivities and buying preferences.

6. **Specific Actions to Propose**: Concrete next steps (demos, POCs, workshops, case studies) that align with their drivers

7. **Success Metrics**: How to measure engagement success

8. **Risk Mitigation**: Potential objections and how to address them. Cite relevant knowledge base content.

CRITICAL: When referencing information from the knowledge base documents, cite the source using this format: [Source: product_capabilities.md] or [Source: competitive_intelligence.md], etc.

Make this practical and actionable. Reference specific knowledge base content where relevant and ALWAYS cite your sources.`))

// Prompt renders the planning prompt for req.
func Prompt(req Request) (string, error) {
	profile, err := json.MarshalIndent(req.Customer, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	var b strings.Builder
	err = promptTemplate.Execute(&b, struct {
		Profile string
		C       CustomerContext
		Docs    any
	}{Profile: string(profile), C: req.Customer, Docs: req.Knowledge})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
