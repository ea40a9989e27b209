package prompt

import "github.com/kapu/ai-hair-salon-go/internal/domain"

// DefaultFeatures are the radar axes the analysis is asked to score, in order.
var DefaultFeatures = []string{
	"Hair", "Eyebrows", "Eyes", "Nose", "Cheeks", "Jaw",
	"Lips", "Chin", "Skin", "Neck", "Ears",
}

type AnalysisPromptData struct {
	Age        int
	Gender     string
	Profession string
	Features   []string
}

type GenerationPromptData struct {
	Age        int
	Gender     string
	Profession string
}

// BuildAnalysis renders the instruction sent with the photo to the analysis
// collaborator.
func BuildAnalysis(demo domain.Demographics) (string, error) {
	demo = demo.Normalize()
	return DefaultPromptBuilder().Render(TemplateAnalysis, AnalysisPromptData{
		Age:        demo.Age,
		Gender:     string(demo.Gender),
		Profession: demo.Profession,
		Features:   DefaultFeatures,
	})
}

// BuildGeneration renders the instruction for the hairstyle image grid.
func BuildGeneration(demo domain.Demographics) (string, error) {
	demo = demo.Normalize()
	return DefaultPromptBuilder().Render(TemplateGeneration, GenerationPromptData{
		Age:        demo.Age,
		Gender:     string(demo.Gender),
		Profession: demo.Profession,
	})
}
