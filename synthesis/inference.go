package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/policypipe/document"
	"github.com/c360studio/policypipe/llm"
)

const inferenceInstruction = `You are an insurance coverage analyst. Given the ISO base forms attached to a policy and the standard provisions those forms carry, list the coverages and exclusions the policy most likely includes. Respond with a single JSON array and nothing else:
[
  {"name": string, "kind": "coverage"|"exclusion", "scope": string, "confidence": number}
]
Only list provisions that are standard for the given forms. Do not invent form numbers.`

// inferredCap bounds the confidence of any inferred provision: inference is
// a guess about what a form usually carries, not a reading of this policy.
const inferredCap = 0.65

// InferenceService fills synthesis gaps from detected base forms: the
// knowledge base says what a form usually carries, the LLM decides which of
// those provisions apply.
type InferenceService struct {
	client llm.Client
	logger *slog.Logger
}

// NewInferenceService creates the service.
func NewInferenceService(client llm.Client, logger *slog.Logger) *InferenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InferenceService{client: client, logger: logger}
}

type inferredProvision struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Scope      string  `json:"scope"`
	Confidence float64 `json:"confidence"`
}

// Infer proposes provisions for the given form references, skipping names
// already present in the synthesized set.
func (s *InferenceService) Infer(ctx context.Context, formRefs []string, existing map[string]bool) ([]document.EffectiveCoverage, []document.EffectiveExclusion, error) {
	var prompt strings.Builder
	formByName := make(map[string]string)
	knownForms := 0

	for _, ref := range formRefs {
		fp, ok := LookupBaseForm(ref)
		if !ok {
			fmt.Fprintf(&prompt, "Form %s: not in the standard form table.\n", ref)
			continue
		}
		knownForms++
		fmt.Fprintf(&prompt, "Form %s (%s):\n", ref, fp.Title)
		for _, c := range fp.Coverages {
			fmt.Fprintf(&prompt, "  coverage: %s\n", c)
			formByName[document.NormalizeKey(c)] = ref
		}
		for _, x := range fp.Exclusions {
			fmt.Fprintf(&prompt, "  exclusion: %s\n", x)
			formByName[document.NormalizeKey(x)] = ref
		}
	}
	if knownForms == 0 {
		return nil, nil, fmt.Errorf("no known base forms among %v", formRefs)
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		SystemInstruction: inferenceInstruction,
		Messages:          []llm.Message{{Role: "user", Content: prompt.String()}},
		Config:            llm.GenerationConfig{JSONMode: true},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("inference completion: %w", err)
	}

	raw := llm.ExtractJSONArray(resp.Content)
	if raw == "" {
		return nil, nil, fmt.Errorf("no JSON array in inference response")
	}
	var proposed []inferredProvision
	if err := json.Unmarshal([]byte(raw), &proposed); err != nil {
		return nil, nil, fmt.Errorf("decode inferred provisions: %w", err)
	}

	var covs []document.EffectiveCoverage
	var excs []document.EffectiveExclusion
	for _, p := range proposed {
		key := document.NormalizeKey(p.Name)
		if key == "" || existing[key] {
			continue
		}
		formID, known := formByName[key]
		if !known {
			// The model proposed something outside the knowledge base.
			s.logger.Debug("Dropping inferred provision not in form table", "name", p.Name)
			continue
		}

		confidence := p.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.6
		}
		if confidence > inferredCap {
			confidence = inferredCap
		}

		prov := document.EffectiveProvision{
			Name:                p.Name,
			Scope:               p.Scope,
			Sources:             []document.ProvisionSource{{BaseProvision: p.Name, FormID: formID}},
			Confidence:          confidence,
			Description:         "Inferred from " + formID,
			IsStandardProvision: true,
			CreatedAt:           time.Now(),
		}
		existing[key] = true

		switch p.Kind {
		case "exclusion":
			prov.State = document.StateExcluded
			prov.CanonicalID = ExclusionCanonicalID(p.Name)
			excs = append(excs, document.EffectiveExclusion{EffectiveProvision: prov})
		default:
			prov.State = document.StateCovered
			prov.CanonicalID = CoverageCanonicalID(p.Name)
			covs = append(covs, document.EffectiveCoverage{EffectiveProvision: prov})
		}
	}

	s.logger.Info("Inference fallback complete",
		"forms", knownForms,
		"coverages", len(covs),
		"exclusions", len(excs))

	return covs, excs, nil
}
