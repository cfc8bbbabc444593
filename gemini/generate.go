package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

const (
	FlashModel = "gemini-3-flash-preview"
	ProModel   = "gemini-3-pro-preview"
	TTSModel   = "gemini-2.5-flash-preview-tts"

	// Deep-reasoning budget for the pro model.
	thinkingBudget int32 = 32768
)

const chatSystemInstruction = "You are an AI assistant for RTT (Rapid Transformational Therapy) practitioners. " +
	"Provide expert advice on psychology, therapy techniques, and practice management. " +
	"Use your deep reasoning capabilities for complex clinical questions."

// GroundedAnswer is a search-grounded response with its cited sources.
type GroundedAnswer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Source is one grounding citation.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// ChatMessage is one prior exchange in a practitioner chat.
type ChatMessage struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// ReadingComponent is one element of a holistic reading (a card, a chakra,
// a transit, a trapped emotion).
type ReadingComponent struct {
	Label      string `json:"label"`
	Name       string `json:"name"`
	Meaning    string `json:"meaning"`
	Suggestion string `json:"suggestion,omitempty"`
}

// HolisticReading is the structured output of a reading request.
type HolisticReading struct {
	Title      string             `json:"title"`
	Type       string             `json:"type"`
	Summary    string             `json:"summary"`
	Components []ReadingComponent `json:"components"`
}

// Generator wraps the single-shot generation endpoints of the Gemini API.
type Generator struct {
	client *genai.Client
}

// NewGenerator creates the API client for non-live generation.
func NewGenerator(ctx context.Context, apiKey string) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Generator{client: client}, nil
}

// grounded runs a prompt with Google Search enabled and collects citations.
func (g *Generator) grounded(ctx context.Context, prompt string) (*GroundedAnswer, error) {
	resp, err := g.client.Models.GenerateContent(ctx, FlashModel, genai.Text(prompt),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("grounded generation failed: %w", err)
	}

	answer := &GroundedAnswer{Text: resp.Text()}
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
			if chunk.Web == nil {
				continue
			}
			answer.Sources = append(answer.Sources, Source{
				Title: chunk.Web.Title,
				URI:   chunk.Web.URI,
			})
		}
	}
	return answer, nil
}

// ConsultHolisticDr answers a wellness query as a functional-medicine
// specialist, grounded in current clinical research.
func (g *Generator) ConsultHolisticDr(ctx context.Context, query string) (*GroundedAnswer, error) {
	prompt := fmt.Sprintf(`Act as an expert Holistic Physician and Functional Medicine specialist.
Analyze the following wellness query or symptoms: %q.

Provide a comprehensive holistic wellness plan including:
1. Potential Root Causes (from a functional medicine perspective).
2. Natural Remedies & Medicines (Herbs, supplements, tinctures).
3. Nutritional Guidance (Foods to embrace or avoid).
4. Lifestyle & Somatic practices (Breathwork, specific yoga poses, circadian rhythm adjustments).

IMPORTANT: You MUST use Google Search to find current clinical research on natural supplements and dosages.
DISCLAIMER: Always start with a professional medical disclaimer stating this is for informational purposes only.`, query)

	return g.grounded(ctx, prompt)
}

// ResearchTopic researches a topic in a therapy context with search grounding.
func (g *Generator) ResearchTopic(ctx context.Context, topic string) (*GroundedAnswer, error) {
	prompt := fmt.Sprintf(
		"Research the following topic in the context of psychological therapy and current events: %s", topic)
	return g.grounded(ctx, prompt)
}

// Chat answers a practitioner question with full reasoning, continuing the
// given history.
func (g *Generator) Chat(ctx context.Context, message string, history []ChatMessage) (string, error) {
	var prior []*genai.Content
	for _, m := range history {
		prior = append(prior, &genai.Content{
			Role:  m.Role,
			Parts: []*genai.Part{{Text: m.Text}},
		})
	}

	chat, err := g.client.Chats.Create(ctx, ProModel, &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](thinkingBudget),
		},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: chatSystemInstruction}},
		},
	}, prior)
	if err != nil {
		return "", fmt.Errorf("failed to create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("chat message failed: %w", err)
	}
	return resp.Text(), nil
}

// AnalyzeVideoSession reviews a recorded session video against the prompt.
func (g *Generator) AnalyzeVideoSession(ctx context.Context, video []byte, mimeType, prompt string) (string, error) {
	contents := []*genai.Content{
		{Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: video}},
			{Text: prompt},
		}},
	}
	resp, err := g.client.Models.GenerateContent(ctx, ProModel, contents,
		&genai.GenerateContentConfig{
			ThinkingConfig: &genai.ThinkingConfig{
				ThinkingBudget: genai.Ptr[int32](thinkingBudget),
			},
		})
	if err != nil {
		return "", fmt.Errorf("video analysis failed: %w", err)
	}
	return resp.Text(), nil
}

// GenerateReframes turns limiting beliefs into positive affirmations for a
// transformation script.
func (g *Generator) GenerateReframes(ctx context.Context, limitingBeliefs string) ([]string, error) {
	prompt := fmt.Sprintf(`As an RTT (Rapid Transformational Therapy) expert, reframe the following limiting beliefs into powerful, commanding, and positive affirmations for a transformation script.
Focus on:
1. Being present tense.
2. Using emotional and vivid language.
3. Addressing the root cause (not enough, not lovable, different).

Limiting Beliefs: %s`, limitingBeliefs)

	resp, err := g.client.Models.GenerateContent(ctx, FlashModel, genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"reframes": {
						Type:        genai.TypeArray,
						Items:       &genai.Schema{Type: genai.TypeString},
						Description: "A list of 3-5 powerful positive reframes.",
					},
				},
				Required: []string{"reframes"},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("reframe generation failed: %w", err)
	}

	var out struct {
		Reframes []string `json:"reframes"`
	}
	if err := sonic.Unmarshal([]byte(resp.Text()), &out); err != nil {
		log.Printf("❌ Failed to parse reframes: %v", err)
		return nil, fmt.Errorf("invalid reframe payload: %w", err)
	}
	return out.Reframes, nil
}

// GenerateHolisticReading produces a structured reading of the given type
// (tarot, astrology, chakra or body-code).
func (g *Generator) GenerateHolisticReading(ctx context.Context, readingType, background string) (*HolisticReading, error) {
	prompt := fmt.Sprintf(`Act as an expert Holistic RTT practitioner. Provide a deep, therapeutic reading for %s based on: %s.

Specific rules:
- If tarot: Provide exactly 3 cards representing Past, Present, and Future. Link each card's archetypal meaning to specific subconscious blocks or RTT regression themes.
- If astrology: Identify current major planetary transits (e.g., Saturn Return, Mercury Retrograde, Pluto movements) and their impact on the client's emotional landscape.
- If chakra: Analyze the 7 chakras. Identify which are overactive, underactive, or blocked and how this manifests as physical or emotional symptoms.
- If body-code: Use The Body Code framework (Dr. Bradley Nelson style) to identify trapped emotions, toxicity, or structural imbalances that need release.

Format the response as a JSON object with a title, a summary, and a list of components.`, readingType, background)

	componentSchema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label":      {Type: genai.TypeString},
			"name":       {Type: genai.TypeString},
			"meaning":    {Type: genai.TypeString},
			"suggestion": {Type: genai.TypeString},
		},
		Required: []string{"label", "name", "meaning"},
	}

	resp, err := g.client.Models.GenerateContent(ctx, FlashModel, genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":      {Type: genai.TypeString},
					"type":       {Type: genai.TypeString},
					"summary":    {Type: genai.TypeString},
					"components": {Type: genai.TypeArray, Items: componentSchema},
				},
				Required: []string{"title", "type", "summary", "components"},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("reading generation failed: %w", err)
	}

	var reading HolisticReading
	if err := sonic.Unmarshal([]byte(resp.Text()), &reading); err != nil {
		log.Printf("❌ Failed to parse holistic reading: %v", err)
		return nil, fmt.Errorf("invalid reading payload: %w", err)
	}
	return &reading, nil
}

// GenerateFullScript writes a complete RTT hypnosis script incorporating the
// given reframes.
func (g *Generator) GenerateFullScript(ctx context.Context, clientName, issue string, reframes []string) (string, error) {
	prompt := fmt.Sprintf(`Write a professional RTT (Rapid Transformational Therapy) style hypnosis script for %s addressing %s.
Incorporate these specific reframes: %s.`, clientName, issue, strings.Join(reframes, ", "))

	resp, err := g.client.Models.GenerateContent(ctx, ProModel, genai.Text(prompt),
		&genai.GenerateContentConfig{
			ThinkingConfig: &genai.ThinkingConfig{
				ThinkingBudget: genai.Ptr[int32](thinkingBudget),
			},
			Temperature: genai.Ptr[float32](0.8),
		})
	if err != nil {
		return "", fmt.Errorf("script generation failed: %w", err)
	}
	return resp.Text(), nil
}

// TextToSpeech synthesizes the text with the given prebuilt voice. The
// result is raw 24kHz mono PCM.
func (g *Generator) TextToSpeech(ctx context.Context, text, voiceName string) ([]byte, error) {
	if voiceName == "" {
		voiceName = "Kore"
	}
	resp, err := g.client.Models.GenerateContent(ctx, TTSModel, genai.Text(text),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName},
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("speech synthesis returned no audio")
}
