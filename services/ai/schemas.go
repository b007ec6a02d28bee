package aisvc

import (
	"google.golang.org/genai"

	"github.com/trezcool/maktaba/core/ai"
)

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

var schemas = map[ai.Flow]*genai.Schema{
	ai.FlowSummarize: {
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": str("A concise summary of the provided content."),
		},
		Required: []string{"summary"},
	},
	ai.FlowExplain: {
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"response": str("The tutor's response to the student."),
		},
		Required: []string{"response"},
	},
	ai.FlowQuiz: {
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"questions": {
				Type:     genai.TypeArray,
				MinItems: genai.Ptr[int64](1),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question": str("The question text."),
						"options": {
							Type:        genai.TypeArray,
							Description: "Exactly four possible answers.",
							Items:       str(""),
							MinItems:    genai.Ptr[int64](ai.QuestionOptions),
							MaxItems:    genai.Ptr[int64](ai.QuestionOptions),
						},
						"answer": str("The correct answer, copied verbatim from the options."),
					},
					Required:         []string{"question", "options", "answer"},
					PropertyOrdering: []string{"question", "options", "answer"},
				},
			},
		},
		Required: []string{"questions"},
	},
}
